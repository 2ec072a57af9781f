package usecase

import (
	"context"
	"fmt"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	applogger "DealWatch/pkg/logger"
)

// WeightsConfig carries the signal-weighting tuning constants.
type WeightsConfig struct {
	Enabled bool
	// ActivationSamples is the minimum resolved predictions a signal needs
	// before its historical accuracy influences its weight.
	ActivationSamples int
	// BrierFloor keeps a near-perfect signal from swallowing the whole
	// weight budget through division by a tiny error.
	BrierFloor float64
}

// Weighter recomputes per-signal weights from historical Brier scores.
// Signals below the activation threshold keep the uniform weight.
type Weighter struct {
	predictions domrepo.PredictionStore
	store       domrepo.SignalWeightStore
	logger      *applogger.Logger
	cfg         WeightsConfig
}

func NewWeighter(predictions domrepo.PredictionStore, store domrepo.SignalWeightStore, logger *applogger.Logger, cfg WeightsConfig) *Weighter {
	if cfg.ActivationSamples <= 0 {
		cfg.ActivationSamples = 10
	}
	if cfg.BrierFloor <= 0 {
		cfg.BrierFloor = 0.01
	}
	return &Weighter{predictions: predictions, store: store, logger: logger, cfg: cfg}
}

// Recompute rebuilds the weight table from every resolved prediction and
// replaces the stored table whole. Weight is proportional to 1/Brier,
// normalized over activated signals only; inactive signals hold the uniform
// share so a new signal cannot be drowned out before it has history.
func (w *Weighter) Recompute(ctx context.Context) ([]models.SignalWeight, error) {
	signals := models.SignalNames()
	uniform := 1.0 / float64(len(signals))

	if !w.cfg.Enabled {
		out := make([]models.SignalWeight, 0, len(signals))
		for _, s := range signals {
			out = append(out, models.SignalWeight{Signal: s, Weight: uniform})
		}
		return out, nil
	}

	resolved, err := w.predictions.ListResolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resolved predictions: %w", err)
	}

	type acc struct {
		n   int
		sum float64
	}
	bySignal := make(map[models.SignalName]*acc, len(signals))
	for _, s := range signals {
		bySignal[s] = &acc{}
	}
	for _, p := range resolved {
		if p.BrierScore == nil {
			continue
		}
		a, ok := bySignal[p.Signal]
		if !ok {
			continue
		}
		a.n++
		a.sum += *p.BrierScore
	}

	out := make([]models.SignalWeight, 0, len(signals))
	var activatedInverseSum float64
	activated := 0
	for _, s := range signals {
		a := bySignal[s]
		sw := models.SignalWeight{Signal: s, SampleCount: a.n, Weight: uniform}
		if a.n >= w.cfg.ActivationSamples {
			sw.Activated = true
			sw.HistoricalBrier = a.sum / float64(a.n)
			if sw.HistoricalBrier < w.cfg.BrierFloor {
				sw.HistoricalBrier = w.cfg.BrierFloor
			}
			activatedInverseSum += 1.0 / sw.HistoricalBrier
			activated++
		}
		out = append(out, sw)
	}

	// Activated signals split the weight mass left after inactive signals
	// take their uniform share.
	if activated > 0 {
		mass := 1.0 - uniform*float64(len(signals)-activated)
		for i := range out {
			if out[i].Activated {
				out[i].Weight = mass * (1.0 / out[i].HistoricalBrier) / activatedInverseSum
			}
		}
	}

	if err := w.store.Replace(ctx, out); err != nil {
		return nil, fmt.Errorf("replace signal weights: %w", err)
	}
	w.logger.Info("signal weights recomputed",
		applogger.Int("activated", activated),
		applogger.Int("resolved", len(resolved)))
	return out, nil
}
