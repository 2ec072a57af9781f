package usecase

import (
	"context"
	"fmt"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	domsvc "DealWatch/internal/domain/service"
	applogger "DealWatch/pkg/logger"

	"github.com/google/uuid"
)

// Registry owns the prediction lifecycle: registration at assessment time,
// idempotent resolution against observed outcomes, and expiry of predictions
// whose deadline passed unresolved.
type Registry struct {
	store   domrepo.PredictionStore
	metrics domrepo.Metrics
	logger  *applogger.Logger
	enabled bool
}

func NewRegistry(store domrepo.PredictionStore, metrics domrepo.Metrics, logger *applogger.Logger, enabled bool) *Registry {
	return &Registry{store: store, metrics: metrics, logger: logger, enabled: enabled}
}

// Register persists the drafts emitted by a non-REUSE run. The drafts have
// already passed router validation.
func (g *Registry) Register(ctx context.Context, run *models.AssessmentRun, drafts []domsvc.PredictionDraft) error {
	if !g.enabled || len(drafts) == 0 {
		return nil
	}
	preds := make([]models.Prediction, 0, len(drafts))
	for _, d := range drafts {
		preds = append(preds, models.Prediction{
			ID:                  uuid.New(),
			RunID:               run.ID,
			DealID:              run.DealID,
			CreatedCycleDate:    run.CycleDate,
			Type:                d.Type,
			RiskFactor:          d.RiskFactor,
			Signal:              d.Signal,
			StatedProbability:   d.StatedProbability,
			ResolutionDeadline:  d.ResolutionDeadline,
			ResolutionCondition: d.Condition,
			Status:              models.StatusPending,
		})
	}
	if err := g.store.Insert(ctx, preds); err != nil {
		return fmt.Errorf("register predictions for %s: %w", run.DealID, err)
	}
	return nil
}

// Resolve scores a single prediction against a binary outcome. Resolving an
// already-resolved or expired prediction is a no-op; the first resolution
// wins and its Brier score is immutable.
func (g *Registry) Resolve(ctx context.Context, id uuid.UUID, outcome int, observedAt time.Time) error {
	if !g.enabled {
		return nil
	}
	if outcome != 0 && outcome != 1 {
		return fmt.Errorf("outcome must be 0 or 1, got %d", outcome)
	}
	p, err := g.store.Get(ctx, id)
	if err != nil {
		return err
	}
	score := models.Brier(p.StatedProbability, outcome)
	applied, err := g.store.MarkResolved(ctx, id, outcome, score, observedAt)
	if err != nil {
		return err
	}
	if !applied {
		g.logger.Debug("resolution ignored, prediction no longer pending",
			applogger.String("prediction", id.String()))
		return nil
	}
	g.metrics.RecordBrier(string(p.Signal), score)
	g.metrics.RecordResolution(string(models.StatusResolved))
	return nil
}

// ResolveByCondition resolves every pending prediction whose condition
// matches the observed event. Used by the outcome feed where events carry a
// condition target rather than a prediction id.
func (g *Registry) ResolveByCondition(ctx context.Context, dealID, kind, target string, outcome int, observedAt time.Time) (int, error) {
	if !g.enabled {
		return 0, nil
	}
	pending, err := g.store.PendingByCondition(ctx, dealID, kind, target)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, p := range pending {
		if err := g.Resolve(ctx, p.ID, outcome, observedAt); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

// SweepExpired marks every pending prediction past its deadline as expired.
// Expired predictions never receive a Brier score and are excluded from
// calibration; a chronic expiry rate points at badly chosen conditions.
func (g *Registry) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if !g.enabled {
		return 0, nil
	}
	n, err := g.store.ExpirePastDeadline(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.logger.Info("expired unresolved predictions", applogger.Int("count", n))
		for i := 0; i < n; i++ {
			g.metrics.RecordResolution(string(models.StatusExpiredUnresolved))
		}
	}
	return n, nil
}
