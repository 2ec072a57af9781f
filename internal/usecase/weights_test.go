package usecase

import (
	"context"
	"math"
	"testing"

	"DealWatch/internal/domain/models"
)

func seedResolvedForSignal(preds *fakePredictionStore, signal models.SignalName, n int, stated float64, outcome int) {
	var seed []models.Prediction
	for i := 0; i < n; i++ {
		p := resolvedPrediction(stated, outcome, models.RiskRegulatory)
		p.Signal = signal
		seed = append(seed, p)
	}
	preds.Insert(context.Background(), seed)
}

func weightOf(t *testing.T, weights []models.SignalWeight, signal models.SignalName) models.SignalWeight {
	t.Helper()
	for _, w := range weights {
		if w.Signal == signal {
			return w
		}
	}
	t.Fatalf("signal %s missing from weight table", signal)
	return models.SignalWeight{}
}

func TestWeightsUniformBeforeActivation(t *testing.T) {
	preds := newFakePredictionStore()
	store := &fakeWeightStore{}
	w := NewWeighter(preds, store, testLogger(t), WeightsConfig{Enabled: true, ActivationSamples: 10})

	// Nine samples: one short of activation.
	seedResolvedForSignal(preds, models.SignalMarketImplied, 9, 0.9, 1)

	weights, err := w.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}
	for _, sw := range weights {
		if sw.Activated {
			t.Fatalf("signal %s activated below threshold", sw.Signal)
		}
		if math.Abs(sw.Weight-1.0/3.0) > 1e-9 {
			t.Fatalf("signal %s weight %v, want uniform 1/3", sw.Signal, sw.Weight)
		}
	}
}

func TestWeightsFavorAccurateSignal(t *testing.T) {
	preds := newFakePredictionStore()
	store := &fakeWeightStore{}
	w := NewWeighter(preds, store, testLogger(t), WeightsConfig{Enabled: true, ActivationSamples: 10, BrierFloor: 0.01})

	// market_implied is sharp (Brier 0.01 after flooring), model_estimated is
	// poor (Brier 0.25), analyst_entered has no history.
	seedResolvedForSignal(preds, models.SignalMarketImplied, 10, 1.0, 1)
	seedResolvedForSignal(preds, models.SignalModelEstimated, 10, 0.5, 1)

	weights, err := w.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}

	market := weightOf(t, weights, models.SignalMarketImplied)
	model := weightOf(t, weights, models.SignalModelEstimated)
	analyst := weightOf(t, weights, models.SignalAnalystEntered)

	if !market.Activated || !model.Activated || analyst.Activated {
		t.Fatalf("activation wrong: market=%v model=%v analyst=%v", market.Activated, model.Activated, analyst.Activated)
	}
	// Inactive signal keeps the uniform share.
	if math.Abs(analyst.Weight-1.0/3.0) > 1e-9 {
		t.Fatalf("inactive signal weight %v, want 1/3", analyst.Weight)
	}
	if market.Weight <= model.Weight {
		t.Fatalf("sharper signal should outweigh the poor one: %v vs %v", market.Weight, model.Weight)
	}
	// Activated signals split the remaining 2/3 proportional to 1/Brier:
	// 1/0.01 vs 1/0.25 gives market 100/104 of the mass.
	wantMarket := (2.0 / 3.0) * (100.0 / 104.0)
	if math.Abs(market.Weight-wantMarket) > 1e-9 {
		t.Fatalf("market weight %v, want %v", market.Weight, wantMarket)
	}

	total := market.Weight + model.Weight + analyst.Weight
	if math.Abs(total-1.0) > 1e-9 {
		t.Fatalf("weights sum to %v, want 1", total)
	}

	stored, _ := store.Current(context.Background())
	if len(stored) != 3 {
		t.Fatalf("weight table not stored")
	}
}

func TestWeightsBrierFloor(t *testing.T) {
	preds := newFakePredictionStore()
	w := NewWeighter(preds, &fakeWeightStore{}, testLogger(t), WeightsConfig{Enabled: true, ActivationSamples: 10, BrierFloor: 0.01})

	// Perfect history would mean division by zero without the floor.
	seedResolvedForSignal(preds, models.SignalMarketImplied, 10, 1.0, 1)

	weights, err := w.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}
	market := weightOf(t, weights, models.SignalMarketImplied)
	if market.HistoricalBrier != 0.01 {
		t.Fatalf("historical brier %v, want floored 0.01", market.HistoricalBrier)
	}
}

func TestWeightsDisabledReturnsUniformWithoutStoring(t *testing.T) {
	store := &fakeWeightStore{}
	w := NewWeighter(newFakePredictionStore(), store, testLogger(t), WeightsConfig{Enabled: false})

	weights, err := w.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute error: %v", err)
	}
	if len(weights) != 3 {
		t.Fatalf("got %d weights, want 3", len(weights))
	}
	stored, _ := store.Current(context.Background())
	if stored != nil {
		t.Fatalf("disabled engine must not store weights")
	}
}
