package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"DealWatch/internal/domain/models"
	"DealWatch/pkg/queue"

	applogger "DealWatch/pkg/logger"

	"github.com/google/uuid"
)

// OutcomeHandler consumes the outcome/milestone feed. Delivery is
// at-least-once, so every branch must be idempotent; duplicate resolutions
// are absorbed by the registry's first-write-wins rule.
type OutcomeHandler struct {
	topic    string
	registry *Registry
	flagger  *Flagger
	jobs     queue.QueueService
	logger   *applogger.Logger
}

func NewOutcomeHandler(topic string, registry *Registry, flagger *Flagger, jobs queue.QueueService, logger *applogger.Logger) *OutcomeHandler {
	return &OutcomeHandler{topic: topic, registry: registry, flagger: flagger, jobs: jobs, logger: logger}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

func (h *OutcomeHandler) Handle(ctx context.Context, data []byte) error {
	var ev models.OutcomeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode outcome event: %w", err)
	}
	return h.HandleEvent(ctx, &ev)
}

// HandleEvent dispatches one event. Shared with the websocket feed collector
// so both transports apply identical semantics.
func (h *OutcomeHandler) HandleEvent(ctx context.Context, ev *models.OutcomeEvent) error {
	resolved := 0
	switch ev.Kind {
	case "resolution":
		id, err := uuid.Parse(ev.PredictionID)
		if err != nil {
			return fmt.Errorf("resolution event with bad prediction id %q: %w", ev.PredictionID, err)
		}
		if err := h.registry.Resolve(ctx, id, ev.Outcome, ev.ObservedAt); err != nil {
			return err
		}
		resolved = 1

	case "milestone":
		h.flagger.NoteEvent(ev.DealID, ev.ObservedAt)
		n, err := h.registry.ResolveByCondition(ctx, ev.DealID, "milestone", ev.Target, ev.Outcome, ev.ObservedAt)
		if err != nil {
			return err
		}
		resolved = n

	case "deal_status":
		n, err := h.registry.ResolveByCondition(ctx, ev.DealID, "deal_status", ev.Target, ev.Outcome, ev.ObservedAt)
		if err != nil {
			return err
		}
		resolved = n

	case "halt":
		h.flagger.NoteEvent(ev.DealID, ev.ObservedAt)

	default:
		// Unknown kinds are dropped, not retried: redelivery cannot fix them.
		h.logger.Warn("unknown outcome event kind",
			applogger.String("kind", ev.Kind),
			applogger.String("deal", ev.DealID))
		return nil
	}

	if resolved > 0 && h.jobs != nil {
		// Fresh resolutions shift the aggregates; queue the recomputes on
		// the single worker so writers never race.
		if err := h.jobs.PublishMessage(ctx, TypeCalibrationRecompute, map[string]interface{}{"reason": "resolution"}); err != nil {
			h.logger.Warn("enqueue calibration recompute failed", applogger.Error(err))
		}
		if err := h.jobs.PublishMessage(ctx, TypeWeightsRecompute, map[string]interface{}{"reason": "resolution"}); err != nil {
			h.logger.Warn("enqueue weights recompute failed", applogger.Error(err))
		}
	}
	return nil
}
