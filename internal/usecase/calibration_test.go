package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"DealWatch/internal/domain/models"

	"github.com/google/uuid"
)

func resolvedPrediction(stated float64, outcome int, factor models.RiskFactor) models.Prediction {
	brier := models.Brier(stated, outcome)
	resolvedAt := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return models.Prediction{
		ID:                uuid.New(),
		DealID:            "MSFT-ATVI",
		RunID:             uuid.New(),
		CreatedCycleDate:  "2026-08-01",
		Type:              models.PredDealCloses,
		RiskFactor:        factor,
		Signal:            models.SignalModelEstimated,
		StatedProbability: stated,
		Status:            models.StatusResolved,
		ActualOutcome:     &outcome,
		BrierScore:        &brier,
		ResolvedAt:        &resolvedAt,
	}
}

func newTestCalibrator(t *testing.T, preds *fakePredictionStore, reports *fakeCalibrationStore, reviews *fakeReviewStore) *Calibrator {
	t.Helper()
	return NewCalibrator(preds, reports, reviews, testLogger(t), CalibrationConfig{
		Enabled:              true,
		OverconfidenceMargin: 0.10,
		MinBucketSamples:     5,
	})
}

func TestRecomputeBuildsFullBucketGrid(t *testing.T) {
	preds := newFakePredictionStore()
	reports := &fakeCalibrationStore{}
	c := newTestCalibrator(t, preds, reports, newFakeReviewStore())

	report, err := c.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}
	// 5 probability ranges x 4 risk factors, present even with no data.
	if len(report.Buckets) != 20 {
		t.Fatalf("got %d buckets, want 20", len(report.Buckets))
	}
	stored, err := reports.Current(context.Background())
	if err != nil {
		t.Fatalf("report not stored: %v", err)
	}
	if len(stored.Buckets) != 20 {
		t.Fatalf("stored report truncated")
	}
}

func TestRecomputeBucketMath(t *testing.T) {
	preds := newFakePredictionStore()
	reports := &fakeCalibrationStore{}
	c := newTestCalibrator(t, preds, reports, newFakeReviewStore())

	// Six regulatory predictions stated around 85%, only half resolved true.
	var seed []models.Prediction
	for i := 0; i < 6; i++ {
		outcome := i % 2
		seed = append(seed, resolvedPrediction(0.85, outcome, models.RiskRegulatory))
	}
	preds.Insert(context.Background(), seed)

	report, err := c.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}

	var bucket *models.CalibrationBucket
	for i := range report.Buckets {
		b := &report.Buckets[i]
		if b.RangeLow == 0.8 && b.RiskFactor == models.RiskRegulatory {
			bucket = b
			break
		}
	}
	if bucket == nil || bucket.SampleCount != 6 {
		t.Fatalf("80-100/regulatory bucket not populated: %+v", bucket)
	}
	if bucket.MeanStatedProbability < 0.84 || bucket.MeanStatedProbability > 0.86 {
		t.Fatalf("mean stated %v, want 0.85", bucket.MeanStatedProbability)
	}
	if bucket.EmpiricalResolutionRate != 0.5 {
		t.Fatalf("empirical rate %v, want 0.5", bucket.EmpiricalResolutionRate)
	}

	// Stated 85% vs resolved 50% is well past the margin.
	if len(report.Flags) != 1 || !strings.Contains(report.Flags[0], "overconfident in the 80-100% bucket") {
		t.Fatalf("expected one overconfidence flag, got %v", report.Flags)
	}
	if !strings.Contains(report.Summary, "80-100% bucket have resolved at 50%") {
		t.Fatalf("summary missing bucket line: %q", report.Summary)
	}
}

func TestRecomputeSuppressesThinBuckets(t *testing.T) {
	preds := newFakePredictionStore()
	c := newTestCalibrator(t, preds, &fakeCalibrationStore{}, newFakeReviewStore())

	// Four samples sit below the five-sample minimum.
	var seed []models.Prediction
	for i := 0; i < 4; i++ {
		seed = append(seed, resolvedPrediction(0.9, 0, models.RiskVote))
	}
	preds.Insert(context.Background(), seed)

	report, err := c.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}
	if len(report.Flags) != 0 {
		t.Fatalf("thin bucket should not be flagged, got %v", report.Flags)
	}
	if report.Summary != "" {
		t.Fatalf("thin buckets should produce no summary, got %q", report.Summary)
	}
}

func TestRecomputeFoldsInCorrections(t *testing.T) {
	preds := newFakePredictionStore()
	reviews := newFakeReviewStore()
	reviews.corrections = []models.HumanCorrection{
		{DealID: "A", ErrorType: "overconfident", SubmittedAt: time.Now()},
		{DealID: "B", ErrorType: "overconfident", SubmittedAt: time.Now()},
		{DealID: "C", ErrorType: "stale_data", SubmittedAt: time.Now()},
	}
	c := newTestCalibrator(t, preds, &fakeCalibrationStore{}, reviews)

	report, err := c.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}
	if !strings.Contains(report.Summary, "3 corrections recently") {
		t.Fatalf("summary missing corrections: %q", report.Summary)
	}
	if !strings.Contains(report.Summary, "overconfident x2") || !strings.Contains(report.Summary, "stale_data x1") {
		t.Fatalf("summary missing correction breakdown: %q", report.Summary)
	}
}

func TestRecomputeDisabledWritesNothing(t *testing.T) {
	reports := &fakeCalibrationStore{}
	c := NewCalibrator(newFakePredictionStore(), reports, newFakeReviewStore(), testLogger(t),
		CalibrationConfig{Enabled: false})

	report, err := c.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}
	if len(report.Buckets) != 0 {
		t.Fatalf("disabled engine should return an empty report")
	}
	if _, err := reports.Current(context.Background()); err == nil {
		t.Fatalf("disabled engine must not store a report")
	}
}
