package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
)

func newTestFlagger(t *testing.T, preds *fakePredictionStore, reviews *fakeReviewStore) *Flagger {
	t.Helper()
	return NewFlagger(preds, reviews, newFakeMetrics(), testLogger(t), FlaggerConfig{Enabled: true})
}

func quietInput(dealID string) *FlagInput {
	run := priorRun(dealID)
	run.CycleDate = "2026-08-25"
	run.ProbabilityEstimate = 0.82
	return &FlagInput{
		Context:   baseContext(),
		Verdict:   verdictFor(models.MagnitudeNone),
		Run:       run,
		CycleDate: "2026-08-25",
	}
}

func TestEvaluateQuietDealWritesNothing(t *testing.T) {
	reviews := newFakeReviewStore()
	f := newTestFlagger(t, newFakePredictionStore(), reviews)

	score, triggers, err := f.Evaluate(context.Background(), quietInput("MSFT-ATVI"))
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if score != 0 || len(triggers) != 0 {
		t.Fatalf("quiet deal scored %d with %v", score, triggers)
	}
	items, _ := reviews.ListOpen(context.Background(), 0)
	if len(items) != 0 {
		t.Fatalf("quiet deal must not enter the queue")
	}
}

func TestEvaluateTriggerWeights(t *testing.T) {
	preds := newFakePredictionStore()
	preds.brier["MSFT-ATVI"] = []float64{0.40, 0.30, 0.35} // mean 0.35 > 0.25
	reviews := newFakeReviewStore()
	f := newTestFlagger(t, preds, reviews)
	f.NoteEvent("MSFT-ATVI", time.Now())

	in := quietInput("MSFT-ATVI")
	in.Run.ProbabilityEstimate = 0.50 // 0.32 gap vs market 0.82
	in.Run.ErrorNote = "executor FULL/high failed: upstream 503"
	in.PriorRun = priorRun("MSFT-ATVI")
	in.PriorRun.GradeOutput = "A-"
	in.Run.GradeOutput = "C"

	score, triggers, err := f.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	// 25 + 20 + 15 + 10 + 10, capped at 80.
	if score != 80 {
		t.Fatalf("score %d, want ceiling 80", score)
	}
	if len(triggers) != 5 {
		t.Fatalf("triggers %v, want all five", triggers)
	}
	items, _ := reviews.ListOpen(context.Background(), 0)
	if len(items) != 1 || items[0].PriorityScore != 80 {
		t.Fatalf("queue item not written with ceiling score")
	}
}

func TestEvaluateAnalystDivergenceTriggersDisagreement(t *testing.T) {
	reviews := newFakeReviewStore()
	f := newTestFlagger(t, newFakePredictionStore(), reviews)

	// Market and model agree at 0.82; only the analyst estimate diverges.
	in := quietInput("MSFT-ATVI")
	in.Context.Probabilities[string(models.SignalAnalystEntered)] = 0.45

	score, triggers, err := f.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if score != 25 || len(triggers) != 1 || triggers[0] != models.TriggerSignalDisagreement {
		t.Fatalf("analyst divergence scored %d with %v", score, triggers)
	}

	// An analyst estimate in line with the others stays quiet.
	in = quietInput("MSFT-ATVI")
	in.Context.Probabilities[string(models.SignalAnalystEntered)] = 0.80
	score, _, err = f.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if score != 0 {
		t.Fatalf("agreeing analyst estimate scored %d, want 0", score)
	}
}

func TestEvaluateRecomputesScoreInsteadOfIncrementing(t *testing.T) {
	preds := newFakePredictionStore()
	reviews := newFakeReviewStore()
	f := newTestFlagger(t, preds, reviews)

	in := quietInput("MSFT-ATVI")
	in.Run.ProbabilityEstimate = 0.50 // disagreement only: 25
	for i := 0; i < 3; i++ {
		score, _, err := f.Evaluate(context.Background(), in)
		if err != nil {
			t.Fatalf("evaluate error: %v", err)
		}
		if score != 25 {
			t.Fatalf("pass %d scored %d, want stable 25", i, score)
		}
	}
	items, _ := reviews.ListOpen(context.Background(), 0)
	if len(items) != 1 {
		t.Fatalf("repeated evaluation duplicated the queue item")
	}
	if items[0].PriorityScore != 25 {
		t.Fatalf("score %d accumulated across cycles, want 25", items[0].PriorityScore)
	}
}

func TestEvaluateEventWindowExpires(t *testing.T) {
	preds := newFakePredictionStore()
	reviews := newFakeReviewStore()
	f := NewFlagger(preds, reviews, newFakeMetrics(), testLogger(t), FlaggerConfig{
		Enabled:     true,
		EventWindow: time.Hour,
	})

	f.NoteEvent("MSFT-ATVI", time.Now().Add(-2*time.Hour))
	score, _, err := f.Evaluate(context.Background(), quietInput("MSFT-ATVI"))
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if score != 0 {
		t.Fatalf("stale event still scored %d", score)
	}

	f.NoteEvent("MSFT-ATVI", time.Now())
	score, triggers, err := f.Evaluate(context.Background(), quietInput("MSFT-ATVI"))
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if score != 10 || len(triggers) != 1 || triggers[0] != models.TriggerMilestoneEvent {
		t.Fatalf("fresh event scored %d with %v", score, triggers)
	}
}

func TestCloseRequiresOpenItem(t *testing.T) {
	reviews := newFakeReviewStore()
	f := newTestFlagger(t, newFakePredictionStore(), reviews)

	corr := &models.HumanCorrection{DealID: "MSFT-ATVI", CycleDate: "2026-08-25", ErrorType: "overconfident"}
	if err := f.Close(context.Background(), corr); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("closing with nothing open should be ErrNotFound, got %v", err)
	}

	in := quietInput("MSFT-ATVI")
	in.Run.ProbabilityEstimate = 0.50
	if _, _, err := f.Evaluate(context.Background(), in); err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if err := f.Close(context.Background(), corr); err != nil {
		t.Fatalf("close error: %v", err)
	}
	items, _ := reviews.ListOpen(context.Background(), 0)
	if len(items) != 0 {
		t.Fatalf("item still open after correction")
	}
	since := time.Now().Add(-time.Minute)
	corrs, _ := reviews.ListCorrectionsSince(context.Background(), since)
	if len(corrs) != 1 {
		t.Fatalf("correction not recorded")
	}
}
