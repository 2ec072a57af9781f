package usecase

import (
	"context"
	"time"

	applogger "DealWatch/pkg/logger"
)

// Queue message types. All three recomputes run on the same single-worker
// queue so the replace-whole-table writes are serialized.
const (
	TypeCalibrationRecompute = "recompute.calibration"
	TypeWeightsRecompute     = "recompute.weights"
	TypeRegistrySweep        = "registry.sweep"
)

// CalibrationJob rebuilds the calibration report.
type CalibrationJob struct {
	calibrator *Calibrator
	logger     *applogger.Logger
}

func NewCalibrationJob(calibrator *Calibrator, logger *applogger.Logger) *CalibrationJob {
	return &CalibrationJob{calibrator: calibrator, logger: logger}
}

func (j *CalibrationJob) Name() string { return "calibration_recompute" }
func (j *CalibrationJob) Type() string { return TypeCalibrationRecompute }

func (j *CalibrationJob) Handle(ctx context.Context, _ interface{}) error {
	_, err := j.calibrator.Recompute(ctx)
	return err
}

// WeightsJob rebuilds the signal weight table.
type WeightsJob struct {
	weighter *Weighter
	logger   *applogger.Logger
}

func NewWeightsJob(weighter *Weighter, logger *applogger.Logger) *WeightsJob {
	return &WeightsJob{weighter: weighter, logger: logger}
}

func (j *WeightsJob) Name() string { return "weights_recompute" }
func (j *WeightsJob) Type() string { return TypeWeightsRecompute }

func (j *WeightsJob) Handle(ctx context.Context, _ interface{}) error {
	_, err := j.weighter.Recompute(ctx)
	return err
}

// SweepJob expires pending predictions whose deadline passed.
type SweepJob struct {
	registry *Registry
	logger   *applogger.Logger
}

func NewSweepJob(registry *Registry, logger *applogger.Logger) *SweepJob {
	return &SweepJob{registry: registry, logger: logger}
}

func (j *SweepJob) Name() string { return "registry_sweep" }
func (j *SweepJob) Type() string { return TypeRegistrySweep }

func (j *SweepJob) Handle(ctx context.Context, _ interface{}) error {
	n, err := j.registry.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("sweep expired predictions", applogger.Int("count", n))
	}
	return nil
}
