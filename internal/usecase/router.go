package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	domsvc "DealWatch/internal/domain/service"
	"DealWatch/internal/service/ratelimit"
	applogger "DealWatch/pkg/logger"

	"github.com/google/uuid"
)

// ErrIntegrity marks data-integrity violations: the deal is skipped for the
// cycle rather than corrupting shared state.
var ErrIntegrity = errors.New("integrity violation")

// RouterConfig carries the routing tuning constants.
type RouterConfig struct {
	Enabled         bool
	ExecutorTimeout time.Duration
	TierCosts       map[models.Tier]float64
	ExecutorRPS     float64
	MinPredictions  int
	MaxPredictions  int
}

// Router maps a change verdict to an execution strategy and model tier,
// invokes the executor when needed, and fails closed on executor errors.
type Router struct {
	exec        domsvc.AssessmentExecutor
	runs        domrepo.RunStore
	calibration domrepo.CalibrationStore
	weights     domrepo.SignalWeightStore
	limiter     *ratelimit.Limiter
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	cfg         RouterConfig

	calibrationEnabled bool
	weightingEnabled   bool
}

func NewRouter(
	exec domsvc.AssessmentExecutor,
	runs domrepo.RunStore,
	calibration domrepo.CalibrationStore,
	weights domrepo.SignalWeightStore,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	cfg RouterConfig,
	calibrationEnabled, weightingEnabled bool,
) *Router {
	if cfg.ExecutorTimeout <= 0 {
		cfg.ExecutorTimeout = 60 * time.Second
	}
	if cfg.MinPredictions <= 0 {
		cfg.MinPredictions = 2
	}
	if cfg.MaxPredictions <= 0 {
		cfg.MaxPredictions = 5
	}
	return &Router{
		exec:               exec,
		runs:               runs,
		calibration:        calibration,
		weights:            weights,
		limiter:            ratelimit.New(),
		metrics:            metrics,
		logger:             logger,
		cfg:                cfg,
		calibrationEnabled: calibrationEnabled,
		weightingEnabled:   weightingEnabled,
	}
}

// routeTable is the fixed magnitude → strategy → tier mapping.
func routeTable(m models.Magnitude) (models.Strategy, models.Tier) {
	switch m {
	case models.MagnitudeNone:
		return models.StrategyReuse, models.TierNone
	case models.MagnitudeMinor:
		return models.StrategyDelta, models.TierCheap
	case models.MagnitudeModerate:
		return models.StrategyDelta, models.TierMid
	default: // MAJOR, FIRST
		return models.StrategyFull, models.TierHigh
	}
}

// Route produces the single AssessmentRun for this deal and cycle, plus the
// prediction drafts the executor emitted (empty for REUSE).
func (r *Router) Route(ctx context.Context, verdict *models.ChangeVerdict, mc *models.MaterialContext) (*models.AssessmentRun, []domsvc.PredictionDraft, error) {
	strategy, tier := routeTable(verdict.Magnitude)
	if !r.cfg.Enabled {
		strategy, tier = models.StrategyReuse, models.TierNone
	}

	if strategy == models.StrategyReuse {
		run, err := r.reuse(ctx, verdict, "")
		switch {
		case err == nil:
			r.metrics.RecordRunRouted(string(run.Strategy), string(run.Tier))
			// The avoided cost is whatever the table would have spent on
			// this verdict.
			_, avoided := routeTable(verdict.Magnitude)
			r.metrics.RecordCost(0, r.tierCost(avoided))
			return run, nil, nil
		case !r.cfg.Enabled:
			// Routing is off, so the executor stays off too. With nothing
			// to copy, the deal is skipped for this cycle.
			return nil, nil, fmt.Errorf("routing disabled and no prior run for %s: %w", verdict.DealID, err)
		default:
			// No successful run to copy from; there is no basis for reuse.
			r.logger.Warn("no prior run to reuse, escalating to full",
				applogger.String("deal", verdict.DealID))
			strategy, tier = models.StrategyFull, models.TierHigh
		}
	}

	req := r.buildRequest(ctx, verdict, mc, strategy, tier)
	result, execErr := r.invoke(ctx, req)
	if execErr != nil {
		// Fail closed: degrade to a reuse of the last successful run with an
		// explicit annotation. Never fabricate a result.
		r.metrics.RecordError("executor")
		r.logger.Error("executor failed, degrading to reuse",
			applogger.String("deal", verdict.DealID),
			applogger.Error(execErr))
		run, err := r.reuse(ctx, verdict, fmt.Sprintf("executor %s/%s failed: %v", strategy, tier, execErr))
		if err != nil {
			return nil, nil, fmt.Errorf("executor failed and no prior run for %s: %w", verdict.DealID, execErr)
		}
		r.metrics.RecordRunRouted(string(models.StrategyReuse), string(models.TierNone))
		return run, nil, nil
	}

	if err := r.validateDrafts(verdict.CycleDate, result.Predictions); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	run := &models.AssessmentRun{
		ID:                  uuid.New(),
		DealID:              verdict.DealID,
		CycleDate:           verdict.CycleDate,
		Strategy:            strategy,
		Tier:                tier,
		CostEstimate:        r.tierCost(tier),
		ProbabilityEstimate: result.ProbabilityEstimate,
		GradeOutput:         result.GradeOutput,
		CreatedAt:           time.Now().UTC(),
	}
	r.metrics.RecordRunRouted(string(strategy), string(tier))
	r.metrics.RecordCost(run.CostEstimate, 0)
	return run, result.Predictions, nil
}

// reuse copies the last successful run's outputs at cost zero.
func (r *Router) reuse(ctx context.Context, verdict *models.ChangeVerdict, note string) (*models.AssessmentRun, error) {
	prev, err := r.runs.LastSuccessful(ctx, verdict.DealID)
	if err != nil {
		return nil, err
	}
	return &models.AssessmentRun{
		ID:                  uuid.New(),
		DealID:              verdict.DealID,
		CycleDate:           verdict.CycleDate,
		Strategy:            models.StrategyReuse,
		Tier:                models.TierNone,
		CostEstimate:        0,
		ProbabilityEstimate: prev.ProbabilityEstimate,
		GradeOutput:         prev.GradeOutput,
		ErrorNote:           note,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

func (r *Router) buildRequest(ctx context.Context, verdict *models.ChangeVerdict, mc *models.MaterialContext, strategy models.Strategy, tier models.Tier) *domsvc.ExecuteRequest {
	req := &domsvc.ExecuteRequest{
		DealID:    verdict.DealID,
		CycleDate: verdict.CycleDate,
		Strategy:  strategy,
		Tier:      tier,
	}
	if prev, err := r.runs.LastSuccessful(ctx, verdict.DealID); err == nil {
		req.PriorGrade = prev.GradeOutput
	}
	switch strategy {
	case models.StrategyDelta:
		// Abbreviated prompt: changed fields plus the prior grade as context.
		req.ChangedFields = verdict.ChangedFields
	case models.StrategyFull:
		req.Context = mc
	}
	// A disabled calibration engine means empty feedback, not an error.
	if r.calibrationEnabled {
		if report, err := r.calibration.Current(ctx); err == nil {
			req.CalibrationFeedback = report.Summary
		}
	}
	if r.weightingEnabled {
		if weights, err := r.weights.Current(ctx); err == nil {
			req.SignalWeights = weights
		}
	}
	return req
}

// invoke runs the executor under the configured timeout, retrying exactly
// once. No retry beyond one, no indefinite waiting.
func (r *Router) invoke(ctx context.Context, req *domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		r.waitForSlot(ctx, req.Tier)
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecutorTimeout)
		start := time.Now()
		result, err := r.exec.Execute(callCtx, req)
		cancel()
		r.metrics.RecordLatency("executor_"+string(req.Tier), time.Since(start).Seconds())
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// waitForSlot blocks briefly until the per-tier token bucket admits a call.
func (r *Router) waitForSlot(ctx context.Context, tier models.Tier) {
	if r.cfg.ExecutorRPS <= 0 {
		return
	}
	for !r.limiter.Allow("tier:"+string(tier), r.cfg.ExecutorRPS, r.cfg.ExecutorRPS) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (r *Router) validateDrafts(cycleDate string, drafts []domsvc.PredictionDraft) error {
	if len(drafts) < r.cfg.MinPredictions || len(drafts) > r.cfg.MaxPredictions {
		return fmt.Errorf("executor emitted %d predictions, want %d..%d", len(drafts), r.cfg.MinPredictions, r.cfg.MaxPredictions)
	}
	cycle, err := time.Parse("2006-01-02", cycleDate)
	if err != nil {
		return fmt.Errorf("cycle date %q: %w", cycleDate, err)
	}
	for i, d := range drafts {
		if d.StatedProbability < 0 || d.StatedProbability > 1 {
			return fmt.Errorf("prediction %d probability %v out of range", i, d.StatedProbability)
		}
		if !d.ResolutionDeadline.After(cycle) {
			return fmt.Errorf("prediction %d deadline %s not after cycle date", i, d.ResolutionDeadline.Format(time.RFC3339))
		}
		if err := d.Condition.Validate(); err != nil {
			return fmt.Errorf("prediction %d: %w", i, err)
		}
	}
	return nil
}

func (r *Router) tierCost(tier models.Tier) float64 {
	return r.cfg.TierCosts[tier]
}
