package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"DealWatch/internal/domain/models"
	domsvc "DealWatch/internal/domain/service"

	"github.com/google/uuid"
)

func newTestRouter(t *testing.T, exec *fakeExecutor, runs *fakeRunStore) (*Router, *fakeMetrics) {
	t.Helper()
	m := newFakeMetrics()
	r := NewRouter(exec, runs, &fakeCalibrationStore{}, &fakeWeightStore{}, m, testLogger(t),
		RouterConfig{
			Enabled:         true,
			ExecutorTimeout: time.Second,
			TierCosts:       map[models.Tier]float64{models.TierCheap: 0.05, models.TierMid: 0.25, models.TierHigh: 1.50},
		}, false, false)
	return r, m
}

func verdictFor(magnitude models.Magnitude) *models.ChangeVerdict {
	return &models.ChangeVerdict{DealID: "MSFT-ATVI", CycleDate: "2026-08-25", Magnitude: magnitude}
}

func okExecutor(grade string) *fakeExecutor {
	return &fakeExecutor{fn: func(req *domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
		return &domsvc.ExecuteResult{
			GradeOutput:         grade,
			ProbabilityEstimate: 0.80,
			Predictions:         goodDrafts(req.CycleDate),
		}, nil
	}}
}

func priorRun(dealID string) *models.AssessmentRun {
	return &models.AssessmentRun{
		ID:                  uuid.New(),
		DealID:              dealID,
		CycleDate:           "2026-08-24",
		Strategy:            models.StrategyFull,
		Tier:                models.TierHigh,
		CostEstimate:        1.50,
		ProbabilityEstimate: 0.78,
		GradeOutput:         "B+",
		CreatedAt:           time.Now().UTC(),
	}
}

func TestRouteTable(t *testing.T) {
	cases := []struct {
		magnitude models.Magnitude
		strategy  models.Strategy
		tier      models.Tier
	}{
		{models.MagnitudeNone, models.StrategyReuse, models.TierNone},
		{models.MagnitudeMinor, models.StrategyDelta, models.TierCheap},
		{models.MagnitudeModerate, models.StrategyDelta, models.TierMid},
		{models.MagnitudeMajor, models.StrategyFull, models.TierHigh},
		{models.MagnitudeFirst, models.StrategyFull, models.TierHigh},
	}
	for _, tc := range cases {
		strategy, tier := routeTable(tc.magnitude)
		if strategy != tc.strategy || tier != tc.tier {
			t.Fatalf("%s routed to %s/%s, want %s/%s", tc.magnitude, strategy, tier, tc.strategy, tc.tier)
		}
	}
}

func TestRouteReuseCopiesPriorRun(t *testing.T) {
	runs := &fakeRunStore{}
	prior := priorRun("MSFT-ATVI")
	runs.Save(context.Background(), prior)

	exec := okExecutor("A")
	r, _ := newTestRouter(t, exec, runs)

	run, drafts, err := r.Route(context.Background(), verdictFor(models.MagnitudeNone), nil)
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if run.Strategy != models.StrategyReuse || run.Tier != models.TierNone {
		t.Fatalf("got %s/%s, want REUSE/none", run.Strategy, run.Tier)
	}
	if run.CostEstimate != 0 {
		t.Fatalf("reuse run cost should be zero, got %v", run.CostEstimate)
	}
	if run.GradeOutput != prior.GradeOutput || run.ProbabilityEstimate != prior.ProbabilityEstimate {
		t.Fatalf("reuse run did not copy prior outputs")
	}
	if len(drafts) != 0 {
		t.Fatalf("reuse run should carry no drafts")
	}
	if exec.callCount() != 0 {
		t.Fatalf("reuse must never call the executor")
	}
}

func TestRouteReuseWithoutPriorEscalatesToFull(t *testing.T) {
	exec := okExecutor("A-")
	r, _ := newTestRouter(t, exec, &fakeRunStore{})

	run, drafts, err := r.Route(context.Background(), verdictFor(models.MagnitudeNone), baseContext())
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if run.Strategy != models.StrategyFull || run.Tier != models.TierHigh {
		t.Fatalf("got %s/%s, want FULL/high when nothing exists to reuse", run.Strategy, run.Tier)
	}
	if len(drafts) == 0 {
		t.Fatalf("full run should carry prediction drafts")
	}
	if exec.callCount() != 1 {
		t.Fatalf("executor called %d times, want 1", exec.callCount())
	}
}

func TestRouteDisabledAlwaysReuses(t *testing.T) {
	runs := &fakeRunStore{}
	prior := priorRun("MSFT-ATVI")
	runs.Save(context.Background(), prior)

	exec := okExecutor("A")
	m := newFakeMetrics()
	r := NewRouter(exec, runs, &fakeCalibrationStore{}, &fakeWeightStore{}, m, testLogger(t),
		RouterConfig{
			Enabled:   false,
			TierCosts: map[models.Tier]float64{models.TierHigh: 1.50},
		}, false, false)

	// Even a MAJOR verdict reuses the last run at cost zero.
	run, drafts, err := r.Route(context.Background(), verdictFor(models.MagnitudeMajor), baseContext())
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if run.Strategy != models.StrategyReuse || run.CostEstimate != 0 {
		t.Fatalf("disabled routing produced %s at cost %v", run.Strategy, run.CostEstimate)
	}
	if run.GradeOutput != prior.GradeOutput {
		t.Fatalf("disabled routing did not copy the prior run")
	}
	if len(drafts) != 0 || exec.callCount() != 0 {
		t.Fatalf("disabled routing must never reach the executor")
	}
}

func TestRouteDisabledWithoutPriorSkipsDeal(t *testing.T) {
	exec := okExecutor("A")
	m := newFakeMetrics()
	r := NewRouter(exec, &fakeRunStore{}, &fakeCalibrationStore{}, &fakeWeightStore{}, m, testLogger(t),
		RouterConfig{Enabled: false}, false, false)

	_, _, err := r.Route(context.Background(), verdictFor(models.MagnitudeFirst), baseContext())
	if err == nil {
		t.Fatalf("expected error: routing disabled and nothing to reuse")
	}
	if exec.callCount() != 0 {
		t.Fatalf("disabled routing escalated to the executor")
	}
}

func TestRouteReuseRecordsAvoidedTierCost(t *testing.T) {
	runs := &fakeRunStore{}
	runs.Save(context.Background(), priorRun("MSFT-ATVI"))

	r, m := newTestRouter(t, okExecutor("A"), runs)

	// A NONE verdict maps to no tier, so nothing was avoided.
	if _, _, err := r.Route(context.Background(), verdictFor(models.MagnitudeNone), nil); err != nil {
		t.Fatalf("route error: %v", err)
	}
	if got := m.avoidedCost(); got != 0 {
		t.Fatalf("NONE reuse recorded avoided cost %v, want 0", got)
	}
}

func TestRouteExecutorFailureDegradesToReuse(t *testing.T) {
	runs := &fakeRunStore{}
	runs.Save(context.Background(), priorRun("MSFT-ATVI"))

	exec := &fakeExecutor{fn: func(*domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
		return nil, errors.New("upstream 503")
	}}
	r, m := newTestRouter(t, exec, runs)

	run, _, err := r.Route(context.Background(), verdictFor(models.MagnitudeMajor), baseContext())
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if run.Strategy != models.StrategyReuse {
		t.Fatalf("failed executor should degrade to REUSE, got %s", run.Strategy)
	}
	if !run.Degraded() {
		t.Fatalf("degraded run must carry an error note")
	}
	if !strings.Contains(run.ErrorNote, "upstream 503") {
		t.Fatalf("error note should carry the executor failure, got %q", run.ErrorNote)
	}
	if exec.callCount() != 2 {
		t.Fatalf("executor called %d times, want exactly one retry", exec.callCount())
	}
	if m.count("error:executor") != 1 {
		t.Fatalf("executor failure not recorded")
	}
}

func TestRouteExecutorFailureWithoutPriorIsError(t *testing.T) {
	exec := &fakeExecutor{fn: func(*domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
		return nil, errors.New("upstream 503")
	}}
	r, _ := newTestRouter(t, exec, &fakeRunStore{})

	_, _, err := r.Route(context.Background(), verdictFor(models.MagnitudeFirst), baseContext())
	if err == nil {
		t.Fatalf("expected error: nothing to reuse and executor down")
	}
}

func TestRouteRejectsInvalidDrafts(t *testing.T) {
	cycle := "2026-08-25"
	cases := []struct {
		name   string
		drafts func() []domsvc.PredictionDraft
	}{
		{"too few", func() []domsvc.PredictionDraft {
			return goodDrafts(cycle)[:1]
		}},
		{"probability out of range", func() []domsvc.PredictionDraft {
			d := goodDrafts(cycle)
			d[0].StatedProbability = 1.2
			return d
		}},
		{"deadline before cycle date", func() []domsvc.PredictionDraft {
			d := goodDrafts(cycle)
			d[1].ResolutionDeadline = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
			return d
		}},
		{"unresolvable condition", func() []domsvc.PredictionDraft {
			d := goodDrafts(cycle)
			d[0].Condition = models.ResolutionCondition{Kind: "vibes", Target: "good"}
			return d
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{fn: func(*domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
				return &domsvc.ExecuteResult{GradeOutput: "A", ProbabilityEstimate: 0.8, Predictions: tc.drafts()}, nil
			}}
			r, _ := newTestRouter(t, exec, &fakeRunStore{})
			_, _, err := r.Route(context.Background(), verdictFor(models.MagnitudeMajor), baseContext())
			if !errors.Is(err, ErrIntegrity) {
				t.Fatalf("want ErrIntegrity, got %v", err)
			}
		})
	}
}

func TestRouteDeltaCarriesChangedFieldsOnly(t *testing.T) {
	runs := &fakeRunStore{}
	runs.Save(context.Background(), priorRun("MSFT-ATVI"))

	var got *domsvc.ExecuteRequest
	exec := &fakeExecutor{fn: func(req *domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
		got = req
		return &domsvc.ExecuteResult{GradeOutput: "B+", ProbabilityEstimate: 0.78, Predictions: goodDrafts(req.CycleDate)}, nil
	}}
	r, _ := newTestRouter(t, exec, runs)

	verdict := verdictFor(models.MagnitudeMinor)
	verdict.ChangedFields = []models.FieldChange{{Field: "spread.gross", Prev: "2.5000", Curr: "3.0000", Numeric: true}}
	if _, _, err := r.Route(context.Background(), verdict, baseContext()); err != nil {
		t.Fatalf("route error: %v", err)
	}
	if got.Strategy != models.StrategyDelta || got.Tier != models.TierCheap {
		t.Fatalf("delta request routed as %s/%s", got.Strategy, got.Tier)
	}
	if got.Context != nil {
		t.Fatalf("delta request must not carry the full context")
	}
	if len(got.ChangedFields) != 1 {
		t.Fatalf("delta request should carry the changed fields")
	}
	if got.PriorGrade != "B+" {
		t.Fatalf("delta request missing prior grade, got %q", got.PriorGrade)
	}
}

func baseContext() *models.MaterialContext {
	return &models.MaterialContext{
		DealID:    "MSFT-ATVI",
		CycleDate: "2026-08-25",
		Categorical: map[string]string{
			"regulatory_status": "phase2",
			"milestone_state":   "vote_pending",
		},
		Spreads:       map[string]float64{"gross": 2.31},
		Probabilities: map[string]float64{"market_implied": 0.82},
	}
}
