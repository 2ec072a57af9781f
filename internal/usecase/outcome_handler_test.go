package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"DealWatch/internal/domain/models"
)

type fakeQueue struct {
	mu        sync.Mutex
	published []string
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, _ interface{}) error {
	q.mu.Lock()
	q.published = append(q.published, msgType)
	q.mu.Unlock()
	return nil
}

func newOutcomeFixture(t *testing.T) (*OutcomeHandler, *fakePredictionStore, *fakeQueue, *Flagger) {
	t.Helper()
	preds := newFakePredictionStore()
	lgr := testLogger(t)
	registry := NewRegistry(preds, newFakeMetrics(), lgr, true)
	flagger := NewFlagger(preds, newFakeReviewStore(), newFakeMetrics(), lgr, FlaggerConfig{Enabled: true})
	jobs := &fakeQueue{}
	return NewOutcomeHandler("deal.outcomes", registry, flagger, jobs, lgr), preds, jobs, flagger
}

func TestHandleResolutionEvent(t *testing.T) {
	h, preds, jobs, _ := newOutcomeFixture(t)
	id := seedPending(t, preds, 0.7, models.ResolutionCondition{Kind: "deal_status", Target: "closed"})

	raw, _ := json.Marshal(models.OutcomeEvent{
		Kind:         "resolution",
		PredictionID: id.String(),
		DealID:       "MSFT-ATVI",
		Outcome:      1,
		ObservedAt:   time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	})
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	p, _ := preds.Get(context.Background(), id)
	if p.Status != models.StatusResolved || *p.ActualOutcome != 1 {
		t.Fatalf("prediction not resolved: %+v", p)
	}

	// A fresh resolution queues both recomputes.
	if len(jobs.published) != 2 {
		t.Fatalf("published %v, want calibration and weights recomputes", jobs.published)
	}
	if jobs.published[0] != TypeCalibrationRecompute || jobs.published[1] != TypeWeightsRecompute {
		t.Fatalf("unexpected job types: %v", jobs.published)
	}
}

func TestHandleMilestoneEventResolvesByCondition(t *testing.T) {
	h, preds, _, flagger := newOutcomeFixture(t)
	seedPending(t, preds, 0.6, models.ResolutionCondition{Kind: "milestone", Target: "hsr_clearance"})

	ev := &models.OutcomeEvent{
		Kind:       "milestone",
		DealID:     "MSFT-ATVI",
		Target:     "hsr_clearance",
		Outcome:    1,
		ObservedAt: time.Now().UTC(),
	}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	resolved, _ := preds.ListResolved(context.Background())
	if len(resolved) != 1 {
		t.Fatalf("milestone did not resolve the matching prediction")
	}
	if !flagger.eventActive("MSFT-ATVI") {
		t.Fatalf("milestone event not noted for review priority")
	}
}

func TestHandleHaltEventOnlyNotes(t *testing.T) {
	h, preds, jobs, flagger := newOutcomeFixture(t)
	seedPending(t, preds, 0.6, models.ResolutionCondition{Kind: "milestone", Target: "hsr_clearance"})

	ev := &models.OutcomeEvent{Kind: "halt", DealID: "MSFT-ATVI", ObservedAt: time.Now().UTC()}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	resolved, _ := preds.ListResolved(context.Background())
	if len(resolved) != 0 {
		t.Fatalf("halt must not resolve predictions")
	}
	if len(jobs.published) != 0 {
		t.Fatalf("halt must not queue recomputes")
	}
	if !flagger.eventActive("MSFT-ATVI") {
		t.Fatalf("halt event not noted")
	}
}

func TestHandleUnknownKindIsDropped(t *testing.T) {
	h, _, jobs, _ := newOutcomeFixture(t)
	ev := &models.OutcomeEvent{Kind: "gossip", DealID: "MSFT-ATVI"}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("unknown kind should be dropped without error, got %v", err)
	}
	if len(jobs.published) != 0 {
		t.Fatalf("unknown kind queued work")
	}
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	h, _, _, _ := newOutcomeFixture(t)
	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
