package usecase

import (
	"context"
	"testing"
	"time"

	"DealWatch/internal/domain/models"

	"github.com/google/uuid"
)

func seedPending(t *testing.T, store *fakePredictionStore, stated float64, cond models.ResolutionCondition) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := store.Insert(context.Background(), []models.Prediction{{
		ID:                  id,
		DealID:              "MSFT-ATVI",
		RunID:               uuid.New(),
		CreatedCycleDate:    "2026-08-25",
		Type:                models.PredDealCloses,
		RiskFactor:          models.RiskRegulatory,
		Signal:              models.SignalModelEstimated,
		StatedProbability:   stated,
		ResolutionDeadline:  time.Date(2026, 9, 25, 0, 0, 0, 0, time.UTC),
		ResolutionCondition: cond,
		Status:              models.StatusPending,
	}})
	if err != nil {
		t.Fatalf("seed prediction: %v", err)
	}
	return id
}

func TestRegisterAssignsIdentity(t *testing.T) {
	store := newFakePredictionStore()
	reg := NewRegistry(store, newFakeMetrics(), testLogger(t), true)

	run := priorRun("MSFT-ATVI")
	run.CycleDate = "2026-08-25"
	if err := reg.Register(context.Background(), run, goodDrafts("2026-08-25")); err != nil {
		t.Fatalf("register error: %v", err)
	}
	if len(store.preds) != 2 {
		t.Fatalf("stored %d predictions, want 2", len(store.preds))
	}
	for _, p := range store.preds {
		if p.Status != models.StatusPending {
			t.Fatalf("new prediction status %s, want PENDING", p.Status)
		}
		if p.RunID != run.ID || p.DealID != run.DealID {
			t.Fatalf("prediction not linked to its run")
		}
	}
}

func TestResolveScoresAndIsIdempotent(t *testing.T) {
	store := newFakePredictionStore()
	m := newFakeMetrics()
	reg := NewRegistry(store, m, testLogger(t), true)

	id := seedPending(t, store, 0.85, models.ResolutionCondition{Kind: "deal_status", Target: "closed"})
	observed := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)

	if err := reg.Resolve(context.Background(), id, 1, observed); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	p, _ := store.Get(context.Background(), id)
	if p.Status != models.StatusResolved {
		t.Fatalf("status %s, want RESOLVED", p.Status)
	}
	want := models.Brier(0.85, 1)
	if *p.BrierScore != want {
		t.Fatalf("brier %v, want %v", *p.BrierScore, want)
	}

	// Late duplicate with the opposite outcome: first write wins.
	if err := reg.Resolve(context.Background(), id, 0, observed.Add(time.Hour)); err != nil {
		t.Fatalf("duplicate resolve should be a no-op, got %v", err)
	}
	p, _ = store.Get(context.Background(), id)
	if *p.ActualOutcome != 1 || *p.BrierScore != want {
		t.Fatalf("duplicate resolution mutated the prediction")
	}
	if m.count("resolution:RESOLVED") != 1 {
		t.Fatalf("resolution recorded %d times, want 1", m.count("resolution:RESOLVED"))
	}
}

func TestResolveRejectsNonBinaryOutcome(t *testing.T) {
	store := newFakePredictionStore()
	reg := NewRegistry(store, newFakeMetrics(), testLogger(t), true)
	id := seedPending(t, store, 0.5, models.ResolutionCondition{Kind: "deal_status", Target: "closed"})

	if err := reg.Resolve(context.Background(), id, 2, time.Now()); err == nil {
		t.Fatalf("expected error for outcome 2")
	}
}

func TestResolveByCondition(t *testing.T) {
	store := newFakePredictionStore()
	reg := NewRegistry(store, newFakeMetrics(), testLogger(t), true)

	cond := models.ResolutionCondition{Kind: "milestone", Target: "hsr_clearance"}
	seedPending(t, store, 0.7, cond)
	seedPending(t, store, 0.6, cond)
	seedPending(t, store, 0.9, models.ResolutionCondition{Kind: "deal_status", Target: "closed"})

	n, err := reg.ResolveByCondition(context.Background(), "MSFT-ATVI", "milestone", "hsr_clearance", 1, time.Now())
	if err != nil {
		t.Fatalf("resolve by condition: %v", err)
	}
	if n != 2 {
		t.Fatalf("resolved %d predictions, want 2", n)
	}
	resolved, _ := store.ListResolved(context.Background())
	if len(resolved) != 2 {
		t.Fatalf("store holds %d resolved, want 2", len(resolved))
	}
}

func TestSweepExpired(t *testing.T) {
	store := newFakePredictionStore()
	m := newFakeMetrics()
	reg := NewRegistry(store, m, testLogger(t), true)

	past := seedPending(t, store, 0.7, models.ResolutionCondition{Kind: "milestone", Target: "vote"})
	store.mu.Lock()
	store.preds[past].ResolutionDeadline = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.mu.Unlock()
	seedPending(t, store, 0.6, models.ResolutionCondition{Kind: "deal_status", Target: "closed"})

	n, err := reg.SweepExpired(context.Background(), time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("sweep error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	p, _ := store.Get(context.Background(), past)
	if p.Status != models.StatusExpiredUnresolved {
		t.Fatalf("status %s, want EXPIRED_UNRESOLVED", p.Status)
	}
	if p.BrierScore != nil {
		t.Fatalf("expired prediction must not carry a Brier score")
	}
	if m.count("resolution:EXPIRED_UNRESOLVED") != 1 {
		t.Fatalf("expiry not recorded")
	}

	// Expired predictions can no longer resolve.
	if err := reg.Resolve(context.Background(), past, 1, time.Now()); err != nil {
		t.Fatalf("late resolve of expired should be a no-op, got %v", err)
	}
	p, _ = store.Get(context.Background(), past)
	if p.Status != models.StatusExpiredUnresolved {
		t.Fatalf("late resolution revived an expired prediction")
	}
}
