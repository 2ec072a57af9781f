package usecase

import (
	"context"
	"testing"
	"time"

	"DealWatch/internal/domain/models"
	domsvc "DealWatch/internal/domain/service"
	"DealWatch/internal/services/fingerprint"
)

type cycleFixture struct {
	provider     *fakeContextProvider
	exec         *fakeExecutor
	runs         *fakeRunStore
	preds        *fakePredictionStore
	fingerprints *fakeFingerprintStore
	reviews      *fakeReviewStore
	audit        *fakeAuditSink
	publisher    *fakePublisher
	metrics      *fakeMetrics
	runner       *CycleRunner
}

func newCycleFixture(t *testing.T, deals []string) *cycleFixture {
	t.Helper()
	fx := &cycleFixture{
		provider:     &fakeContextProvider{deals: deals, contexts: make(map[string]*models.MaterialContext)},
		runs:         &fakeRunStore{},
		preds:        newFakePredictionStore(),
		fingerprints: newFakeFingerprintStore(),
		reviews:      newFakeReviewStore(),
		audit:        &fakeAuditSink{},
		publisher:    &fakePublisher{},
		metrics:      newFakeMetrics(),
	}
	fx.exec = okExecutor("B+")
	lgr := testLogger(t)

	router := NewRouter(fx.exec, fx.runs, &fakeCalibrationStore{}, &fakeWeightStore{}, fx.metrics, lgr,
		RouterConfig{
			Enabled:         true,
			ExecutorTimeout: time.Second,
			TierCosts:       map[models.Tier]float64{models.TierCheap: 0.05, models.TierMid: 0.25, models.TierHigh: 1.50},
		}, false, false)
	registry := NewRegistry(fx.preds, fx.metrics, lgr, true)
	flagger := NewFlagger(fx.preds, fx.reviews, fx.metrics, lgr, FlaggerConfig{Enabled: true})

	fx.runner = NewCycleRunner(
		fx.provider,
		fingerprint.NewHasher(fingerprint.HasherConfig{}),
		fingerprint.NewClassifier(fingerprint.ClassifierConfig{}),
		router, registry, flagger,
		fx.fingerprints, fx.runs, fx.audit, fx.publisher, fx.metrics, lgr,
		CycleConfig{Concurrency: 4, DetectionEnabled: true},
	)
	return fx
}

func contextFor(dealID, cycleDate string, spread float64) *models.MaterialContext {
	return &models.MaterialContext{
		DealID:    dealID,
		CycleDate: cycleDate,
		Categorical: map[string]string{
			"regulatory_status": "phase2",
			"milestone_state":   "vote_pending",
		},
		Spreads:       map[string]float64{"gross": spread},
		Probabilities: map[string]float64{"market_implied": 0.80},
	}
}

func TestCycleFirstSeenDeal(t *testing.T) {
	fx := newCycleFixture(t, []string{"MSFT-ATVI"})
	fx.provider.contexts["MSFT-ATVI"] = contextFor("MSFT-ATVI", "2026-08-25", 2.31)

	summary, err := fx.runner.Run(context.Background(), "2026-08-25")
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("failures: %v", summary.Failures)
	}
	if summary.ByMagnitude["FIRST"] != 1 {
		t.Fatalf("first-seen deal not classified FIRST: %v", summary.ByMagnitude)
	}
	if summary.ByStrategy["FULL"] != 1 {
		t.Fatalf("FIRST deal should route FULL: %v", summary.ByStrategy)
	}
	if summary.TotalCost != 1.50 {
		t.Fatalf("total cost %v, want 1.50", summary.TotalCost)
	}
	if len(fx.runs.runs) != 1 {
		t.Fatalf("run not persisted")
	}
	if len(fx.preds.preds) != 2 {
		t.Fatalf("predictions not registered")
	}
	if _, err := fx.fingerprints.Latest(context.Background(), "MSFT-ATVI"); err != nil {
		t.Fatalf("fingerprint not saved: %v", err)
	}
	if fx.audit.fingerprints != 1 || fx.audit.verdicts != 1 || fx.audit.runs != 1 {
		t.Fatalf("audit rows missing: %+v", fx.audit)
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].Magnitude != models.MagnitudeFirst {
		t.Fatalf("cycle event not published")
	}
}

func TestCycleUnchangedDealReuses(t *testing.T) {
	fx := newCycleFixture(t, []string{"MSFT-ATVI"})
	fx.provider.contexts["MSFT-ATVI"] = contextFor("MSFT-ATVI", "2026-08-25", 2.31)

	if _, err := fx.runner.Run(context.Background(), "2026-08-25"); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	callsAfterFirst := fx.exec.callCount()

	// Same facts next day: fingerprint matches, run is a free reuse.
	fx.provider.contexts["MSFT-ATVI"] = contextFor("MSFT-ATVI", "2026-08-26", 2.31)
	summary, err := fx.runner.Run(context.Background(), "2026-08-26")
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if summary.ByMagnitude["NONE"] != 1 || summary.ByStrategy["REUSE"] != 1 {
		t.Fatalf("unchanged deal not reused: %v / %v", summary.ByMagnitude, summary.ByStrategy)
	}
	if summary.TotalCost != 0 {
		t.Fatalf("reuse cycle cost %v, want 0", summary.TotalCost)
	}
	if fx.exec.callCount() != callsAfterFirst {
		t.Fatalf("reuse cycle called the executor")
	}
}

func TestCycleSpreadMoveRoutesDelta(t *testing.T) {
	fx := newCycleFixture(t, []string{"MSFT-ATVI"})
	fx.provider.contexts["MSFT-ATVI"] = contextFor("MSFT-ATVI", "2026-08-25", 2.31)
	if _, err := fx.runner.Run(context.Background(), "2026-08-25"); err != nil {
		t.Fatalf("first run error: %v", err)
	}

	var sawDelta bool
	fx.exec.fn = func(req *domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
		if req.Strategy == models.StrategyDelta && req.Tier == models.TierCheap {
			sawDelta = true
		}
		return &domsvc.ExecuteResult{GradeOutput: "B+", ProbabilityEstimate: 0.80, Predictions: goodDrafts(req.CycleDate)}, nil
	}

	fx.provider.contexts["MSFT-ATVI"] = contextFor("MSFT-ATVI", "2026-08-26", 4.10)
	summary, err := fx.runner.Run(context.Background(), "2026-08-26")
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if summary.ByMagnitude["MINOR"] != 1 {
		t.Fatalf("spread bucket move not MINOR: %v", summary.ByMagnitude)
	}
	if !sawDelta {
		t.Fatalf("MINOR change did not route DELTA/cheap")
	}
}

func TestCycleIsolatesDealFailures(t *testing.T) {
	fx := newCycleFixture(t, []string{"GOOD-DEAL", "MISSING-DEAL"})
	fx.provider.contexts["GOOD-DEAL"] = contextFor("GOOD-DEAL", "2026-08-25", 2.31)
	// MISSING-DEAL has no context; its Fetch fails.

	summary, err := fx.runner.Run(context.Background(), "2026-08-25")
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if summary.Deals != 2 || summary.Failed != 1 {
		t.Fatalf("deals=%d failed=%d, want 2/1", summary.Deals, summary.Failed)
	}
	if _, ok := summary.Failures["MISSING-DEAL"]; !ok {
		t.Fatalf("failure not attributed: %v", summary.Failures)
	}
	if summary.ByStrategy["FULL"] != 1 {
		t.Fatalf("healthy deal did not complete: %v", summary.ByStrategy)
	}
	if fx.metrics.count("error:cycle_deal") != 1 {
		t.Fatalf("deal failure not recorded")
	}
}
