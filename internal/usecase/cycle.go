package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	"DealWatch/internal/services/fingerprint"
	applogger "DealWatch/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// CycleConfig carries the daily-cycle orchestration settings.
type CycleConfig struct {
	// Concurrency bounds how many deals are processed simultaneously.
	Concurrency int
	// DetectionEnabled gates the hasher and classifier. When off every deal
	// is treated as FIRST each cycle.
	DetectionEnabled bool
}

// CycleSummary aggregates one full cycle for logging and the ops API.
type CycleSummary struct {
	CycleDate   string             `json:"cycle_date"`
	Deals       int                `json:"deals"`
	Failed      int                `json:"failed"`
	ByMagnitude map[string]int     `json:"by_magnitude"`
	ByStrategy  map[string]int     `json:"by_strategy"`
	TotalCost   float64            `json:"total_cost"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Failures    map[string]string  `json:"failures,omitempty"`
}

// CycleRunner drives the per-deal pipeline once per trading day: fetch
// context, fingerprint, classify, route, register predictions, flag for
// review, append audit rows, publish the cycle event. One deal's failure
// never aborts the batch.
type CycleRunner struct {
	provider     domrepo.ContextProvider
	hasher       *fingerprint.Hasher
	classifier   *fingerprint.Classifier
	router       *Router
	registry     *Registry
	flagger      *Flagger
	fingerprints domrepo.FingerprintStore
	runs         domrepo.RunStore
	audit        domrepo.AuditSink
	publisher    domrepo.EventPublisher
	metrics      domrepo.Metrics
	logger       *applogger.Logger
	cfg          CycleConfig
}

func NewCycleRunner(
	provider domrepo.ContextProvider,
	hasher *fingerprint.Hasher,
	classifier *fingerprint.Classifier,
	router *Router,
	registry *Registry,
	flagger *Flagger,
	fingerprints domrepo.FingerprintStore,
	runs domrepo.RunStore,
	audit domrepo.AuditSink,
	publisher domrepo.EventPublisher,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	cfg CycleConfig,
) *CycleRunner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &CycleRunner{
		provider:     provider,
		hasher:       hasher,
		classifier:   classifier,
		router:       router,
		registry:     registry,
		flagger:      flagger,
		fingerprints: fingerprints,
		runs:         runs,
		audit:        audit,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
	}
}

// Run processes every active deal for the cycle date. Per-deal failures are
// collected into the summary; the returned error covers only batch-level
// problems such as the deal list being unavailable.
func (cr *CycleRunner) Run(ctx context.Context, cycleDate string) (*CycleSummary, error) {
	deals, err := cr.provider.ActiveDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active deals: %w", err)
	}

	summary := &CycleSummary{
		CycleDate:   cycleDate,
		Deals:       len(deals),
		ByMagnitude: make(map[string]int),
		ByStrategy:  make(map[string]int),
		Failures:    make(map[string]string),
		StartedAt:   time.Now().UTC(),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cr.cfg.Concurrency)
	for _, dealID := range deals {
		dealID := dealID
		g.Go(func() error {
			verdict, run, err := cr.runDeal(gctx, dealID, cycleDate)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Failures[dealID] = err.Error()
				cr.metrics.RecordError("cycle_deal")
				cr.logger.Error("deal cycle failed",
					applogger.String("deal", dealID),
					applogger.String("cycle_date", cycleDate),
					applogger.Error(err))
				return nil
			}
			summary.ByMagnitude[string(verdict.Magnitude)]++
			summary.ByStrategy[string(run.Strategy)]++
			summary.TotalCost += run.CostEstimate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.FinishedAt = time.Now().UTC()
	cr.flagger.RecordDepth(ctx)
	cr.logger.Info("cycle finished",
		applogger.String("cycle_date", cycleDate),
		applogger.Int("deals", summary.Deals),
		applogger.Int("failed", summary.Failed),
		applogger.Any("by_strategy", summary.ByStrategy))
	return summary, nil
}

func (cr *CycleRunner) runDeal(ctx context.Context, dealID, cycleDate string) (*models.ChangeVerdict, *models.AssessmentRun, error) {
	mc, err := cr.provider.Fetch(ctx, dealID, cycleDate)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch context: %w", err)
	}

	var (
		fp      *models.ContextFingerprint
		verdict *models.ChangeVerdict
	)
	if cr.cfg.DetectionEnabled {
		fp, err = cr.hasher.Fingerprint(mc)
		if err != nil {
			return nil, nil, fmt.Errorf("fingerprint: %w", err)
		}
		prev, err := cr.fingerprints.Latest(ctx, dealID)
		if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
			return nil, nil, fmt.Errorf("load prior fingerprint: %w", err)
		}
		verdict = cr.classifier.Classify(fp, prev)
	} else {
		verdict = &models.ChangeVerdict{DealID: dealID, CycleDate: cycleDate, Magnitude: models.MagnitudeFirst}
	}

	priorRun, err := cr.runs.LastSuccessful(ctx, dealID)
	if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
		return nil, nil, fmt.Errorf("load prior run: %w", err)
	}

	run, drafts, err := cr.router.Route(ctx, verdict, mc)
	if err != nil {
		return nil, nil, fmt.Errorf("route: %w", err)
	}

	if err := cr.runs.Save(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("save run: %w", err)
	}
	if fp != nil {
		if err := cr.fingerprints.Save(ctx, fp); err != nil {
			return nil, nil, fmt.Errorf("save fingerprint: %w", err)
		}
	}
	if err := cr.registry.Register(ctx, run, drafts); err != nil {
		return nil, nil, err
	}

	score, _, err := cr.flagger.Evaluate(ctx, &FlagInput{
		Context:   mc,
		Verdict:   verdict,
		Run:       run,
		PriorRun:  priorRun,
		CycleDate: cycleDate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("flag for review: %w", err)
	}

	cr.appendAudit(ctx, fp, verdict, run)
	cr.publishEvent(ctx, verdict, run, score)
	return verdict, run, nil
}

// appendAudit writes the immutable history rows. Audit lag must not fail the
// deal, so errors are logged and dropped.
func (cr *CycleRunner) appendAudit(ctx context.Context, fp *models.ContextFingerprint, verdict *models.ChangeVerdict, run *models.AssessmentRun) {
	if fp != nil {
		if err := cr.audit.AppendFingerprint(ctx, fp); err != nil {
			cr.metrics.RecordError("audit")
			cr.logger.Warn("audit fingerprint append failed", applogger.Error(err))
		}
	}
	if err := cr.audit.AppendVerdict(ctx, verdict); err != nil {
		cr.metrics.RecordError("audit")
		cr.logger.Warn("audit verdict append failed", applogger.Error(err))
	}
	if err := cr.audit.AppendRun(ctx, run); err != nil {
		cr.metrics.RecordError("audit")
		cr.logger.Warn("audit run append failed", applogger.Error(err))
	}
}

func (cr *CycleRunner) publishEvent(ctx context.Context, verdict *models.ChangeVerdict, run *models.AssessmentRun, score int) {
	ev := &models.CycleEvent{
		DealID:        run.DealID,
		CycleDate:     run.CycleDate,
		Magnitude:     verdict.Magnitude,
		Strategy:      run.Strategy,
		Tier:          run.Tier,
		Degraded:      run.Degraded(),
		PriorityScore: score,
		Timestamp:     time.Now().UTC(),
	}
	if err := cr.publisher.PublishCycleEvent(ctx, ev); err != nil {
		cr.metrics.RecordError("publish")
		cr.logger.Warn("cycle event publish failed",
			applogger.String("deal", run.DealID), applogger.Error(err))
	}
}
