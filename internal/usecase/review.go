package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	applogger "DealWatch/pkg/logger"

	"github.com/google/uuid"
)

// FlaggerConfig carries the trigger weights and thresholds. The default
// weights sum to the score ceiling.
type FlaggerConfig struct {
	Enabled bool

	DisagreementWeight int // default 25
	GradeChangeWeight  int // default 20
	PoorBrierWeight    int // default 15
	MilestoneWeight    int // default 10
	DegradedWeight     int // default 10
	ScoreCeiling       int // default 80

	// DisagreementThreshold is the market-vs-model probability gap, in
	// probability points, that counts as disagreement.
	DisagreementThreshold float64
	// BrierThreshold flags a deal whose recent mean Brier exceeds it.
	BrierThreshold float64
	// BrierLookback is how many recent resolved predictions feed the mean.
	BrierLookback int
	// EventWindow is how long an async milestone or halt event keeps
	// contributing to the deal's priority.
	EventWindow time.Duration
}

func (c *FlaggerConfig) setDefaults() {
	if c.DisagreementWeight <= 0 {
		c.DisagreementWeight = 25
	}
	if c.GradeChangeWeight <= 0 {
		c.GradeChangeWeight = 20
	}
	if c.PoorBrierWeight <= 0 {
		c.PoorBrierWeight = 15
	}
	if c.MilestoneWeight <= 0 {
		c.MilestoneWeight = 10
	}
	if c.DegradedWeight <= 0 {
		c.DegradedWeight = 10
	}
	if c.ScoreCeiling <= 0 {
		c.ScoreCeiling = 80
	}
	if c.DisagreementThreshold <= 0 {
		c.DisagreementThreshold = 0.20
	}
	if c.BrierThreshold <= 0 {
		c.BrierThreshold = 0.25
	}
	if c.BrierLookback <= 0 {
		c.BrierLookback = 5
	}
	if c.EventWindow <= 0 {
		c.EventWindow = 48 * time.Hour
	}
}

// FlagInput is everything the flagger inspects for one deal's cycle.
type FlagInput struct {
	Context   *models.MaterialContext
	Verdict   *models.ChangeVerdict
	Run       *models.AssessmentRun
	PriorRun  *models.AssessmentRun // nil on first cycle
	CycleDate string
}

// Flagger recomputes each deal's review priority every cycle. Scores are
// replaced, never incremented, so a deal that stops triggering drops back
// down. Open items leave the queue only through a human correction.
type Flagger struct {
	predictions domrepo.PredictionStore
	reviews     domrepo.ReviewStore
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	cfg         FlaggerConfig

	mu           sync.Mutex
	recentEvents map[string]time.Time // dealID → last milestone/halt event
}

func NewFlagger(predictions domrepo.PredictionStore, reviews domrepo.ReviewStore, metrics domrepo.Metrics, logger *applogger.Logger, cfg FlaggerConfig) *Flagger {
	cfg.setDefaults()
	return &Flagger{
		predictions:  predictions,
		reviews:      reviews,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
		recentEvents: make(map[string]time.Time),
	}
}

// NoteEvent records an async milestone or halt event. The event raises the
// deal's priority at the next recompute for as long as the window holds.
func (f *Flagger) NoteEvent(dealID string, at time.Time) {
	if !f.cfg.Enabled {
		return
	}
	f.mu.Lock()
	f.recentEvents[dealID] = at
	f.mu.Unlock()
}

// Evaluate recomputes the deal's triggers and priority score and upserts the
// open queue item. A zero score with no triggers writes nothing.
func (f *Flagger) Evaluate(ctx context.Context, in *FlagInput) (int, []models.TriggerReason, error) {
	if !f.cfg.Enabled {
		return 0, nil, nil
	}
	var triggers []models.TriggerReason
	score := 0

	if gap, ok := f.signalGap(in); ok && gap > f.cfg.DisagreementThreshold {
		triggers = append(triggers, models.TriggerSignalDisagreement)
		score += f.cfg.DisagreementWeight
	}
	if in.PriorRun != nil && in.Run.GradeOutput != in.PriorRun.GradeOutput {
		triggers = append(triggers, models.TriggerGradeChange)
		score += f.cfg.GradeChangeWeight
	}
	if mean, n, err := f.recentBrier(ctx, in.Run.DealID); err != nil {
		return 0, nil, err
	} else if n > 0 && mean > f.cfg.BrierThreshold {
		triggers = append(triggers, models.TriggerPoorBrier)
		score += f.cfg.PoorBrierWeight
	}
	if f.eventActive(in.Run.DealID) {
		triggers = append(triggers, models.TriggerMilestoneEvent)
		score += f.cfg.MilestoneWeight
	}
	if in.Run.Degraded() {
		triggers = append(triggers, models.TriggerDegradedCycle)
		score += f.cfg.DegradedWeight
	}

	if score > f.cfg.ScoreCeiling {
		score = f.cfg.ScoreCeiling
	}
	if score == 0 {
		return 0, nil, nil
	}

	now := time.Now().UTC()
	item := &models.ReviewQueueItem{
		ID:            uuid.New(),
		DealID:        in.Run.DealID,
		CycleDate:     in.CycleDate,
		PriorityScore: score,
		Triggers:      triggers,
		Status:        models.ReviewOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := f.reviews.UpsertOpen(ctx, item); err != nil {
		return 0, nil, fmt.Errorf("upsert review item for %s: %w", in.Run.DealID, err)
	}
	f.logger.Info("deal flagged for review",
		applogger.String("deal", in.Run.DealID),
		applogger.Int("priority", score),
		applogger.Any("triggers", triggers))
	return score, triggers, nil
}

// Close resolves the deal's open item with a human correction. Returns
// ErrNotFound when there is nothing open for the deal.
func (f *Flagger) Close(ctx context.Context, corr *models.HumanCorrection) error {
	if corr.SubmittedAt.IsZero() {
		corr.SubmittedAt = time.Now().UTC()
	}
	closed, err := f.reviews.CloseWithCorrection(ctx, corr)
	if err != nil {
		return err
	}
	if !closed {
		return domrepo.ErrNotFound
	}
	f.logger.Info("review item closed",
		applogger.String("deal", corr.DealID),
		applogger.String("error_type", corr.ErrorType))
	return nil
}

// RecordDepth publishes the current open-queue depth gauge.
func (f *Flagger) RecordDepth(ctx context.Context) {
	items, err := f.reviews.ListOpen(ctx, 0)
	if err != nil {
		return
	}
	f.metrics.RecordQueueDepth(len(items))
}

// signalGap measures the widest pairwise spread across the three probability
// estimates for this cycle: market-implied and analyst-entered from the deal
// context, plus the model's own estimate from the run. Any pair diverging is
// enough to trigger.
func (f *Flagger) signalGap(in *FlagInput) (float64, bool) {
	estimates := []float64{in.Run.ProbabilityEstimate}
	if in.Context != nil {
		if market, ok := in.Context.Probabilities[string(models.SignalMarketImplied)]; ok {
			estimates = append(estimates, market)
		}
		if analyst, ok := in.Context.Probabilities[string(models.SignalAnalystEntered)]; ok {
			estimates = append(estimates, analyst)
		}
	}
	if len(estimates) < 2 {
		return 0, false
	}
	lo, hi := estimates[0], estimates[0]
	for _, p := range estimates[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return hi - lo, true
}

func (f *Flagger) recentBrier(ctx context.Context, dealID string) (float64, int, error) {
	scores, err := f.predictions.RecentBrier(ctx, dealID, f.cfg.BrierLookback)
	if err != nil {
		return 0, 0, err
	}
	if len(scores) == 0 {
		return 0, 0, nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), len(scores), nil
}

func (f *Flagger) eventActive(dealID string) bool {
	f.mu.Lock()
	at, ok := f.recentEvents[dealID]
	f.mu.Unlock()
	return ok && time.Since(at) <= f.cfg.EventWindow
}
