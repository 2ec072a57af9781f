package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	applogger "DealWatch/pkg/logger"
)

// probRanges are the five stated-probability buckets. The upper bound of the
// last range is inclusive so 1.0 lands in 80-100.
var probRanges = [5][2]float64{
	{0.0, 0.2},
	{0.2, 0.4},
	{0.4, 0.6},
	{0.6, 0.8},
	{0.8, 1.0},
}

// CalibrationConfig carries the engine tuning constants.
type CalibrationConfig struct {
	Enabled bool
	// OverconfidenceMargin is the stated-vs-empirical gap, in probability
	// points, beyond which a bucket gets flagged.
	OverconfidenceMargin float64
	// MinBucketSamples suppresses feedback for buckets too thin to trust.
	MinBucketSamples int
	// CorrectionWindow bounds how far back human corrections are folded in.
	CorrectionWindow time.Duration
}

// Calibrator recomputes the bucket table from every resolved prediction on
// record and derives the natural-language feedback summary injected into
// FULL assessments.
type Calibrator struct {
	predictions domrepo.PredictionStore
	reports     domrepo.CalibrationStore
	reviews     domrepo.ReviewStore
	logger      *applogger.Logger
	cfg         CalibrationConfig
}

func NewCalibrator(
	predictions domrepo.PredictionStore,
	reports domrepo.CalibrationStore,
	reviews domrepo.ReviewStore,
	logger *applogger.Logger,
	cfg CalibrationConfig,
) *Calibrator {
	if cfg.OverconfidenceMargin <= 0 {
		cfg.OverconfidenceMargin = 0.10
	}
	if cfg.MinBucketSamples <= 0 {
		cfg.MinBucketSamples = 5
	}
	if cfg.CorrectionWindow <= 0 {
		cfg.CorrectionWindow = 90 * 24 * time.Hour
	}
	return &Calibrator{predictions: predictions, reports: reports, reviews: reviews, logger: logger, cfg: cfg}
}

// Recompute rebuilds the full calibration report from scratch and replaces
// the stored one atomically. Expired predictions never appear in the input.
func (c *Calibrator) Recompute(ctx context.Context) (*models.CalibrationReport, error) {
	if !c.cfg.Enabled {
		return &models.CalibrationReport{ComputedAt: time.Now().UTC()}, nil
	}
	resolved, err := c.predictions.ListResolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resolved predictions: %w", err)
	}

	type acc struct {
		n          int
		statedSum  float64
		outcomeSum float64
		brierSum   float64
	}
	cells := make(map[string]*acc)
	key := func(ri int, rf models.RiskFactor) string {
		return fmt.Sprintf("%d/%s", ri, rf)
	}
	for _, p := range resolved {
		if p.BrierScore == nil || p.ActualOutcome == nil {
			continue
		}
		ri := rangeIndex(p.StatedProbability)
		k := key(ri, p.RiskFactor)
		a := cells[k]
		if a == nil {
			a = &acc{}
			cells[k] = a
		}
		a.n++
		a.statedSum += p.StatedProbability
		a.outcomeSum += float64(*p.ActualOutcome)
		a.brierSum += *p.BrierScore
	}

	report := &models.CalibrationReport{ComputedAt: time.Now().UTC()}
	for ri, rng := range probRanges {
		for _, rf := range models.RiskFactors() {
			a := cells[key(ri, rf)]
			bucket := models.CalibrationBucket{
				RangeLow:   rng[0],
				RangeHigh:  rng[1],
				RiskFactor: rf,
			}
			if a != nil && a.n > 0 {
				bucket.SampleCount = a.n
				bucket.MeanStatedProbability = a.statedSum / float64(a.n)
				bucket.EmpiricalResolutionRate = a.outcomeSum / float64(a.n)
				bucket.MeanBrier = a.brierSum / float64(a.n)
			}
			report.Buckets = append(report.Buckets, bucket)
		}
	}

	report.Flags = c.deriveFlags(report.Buckets)
	corrections, err := c.reviews.ListCorrectionsSince(ctx, time.Now().Add(-c.cfg.CorrectionWindow))
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	report.Summary = c.summarize(report, corrections)

	if err := c.reports.Replace(ctx, report); err != nil {
		return nil, fmt.Errorf("replace calibration report: %w", err)
	}
	c.logger.Info("calibration recomputed",
		applogger.Int("resolved", len(resolved)),
		applogger.Int("flags", len(report.Flags)))
	return report, nil
}

func rangeIndex(p float64) int {
	for i, rng := range probRanges[:len(probRanges)-1] {
		if p < rng[1] {
			return i
		}
	}
	return len(probRanges) - 1
}

// deriveFlags compares stated confidence against empirical resolution per
// bucket, aggregated across risk factors within each probability range.
func (c *Calibrator) deriveFlags(buckets []models.CalibrationBucket) []string {
	var flags []string
	for ri, rng := range probRanges {
		var n int
		var stated, empirical float64
		for _, b := range buckets {
			if b.RangeLow == rng[0] && b.RangeHigh == rng[1] && b.SampleCount > 0 {
				n += b.SampleCount
				stated += b.MeanStatedProbability * float64(b.SampleCount)
				empirical += b.EmpiricalResolutionRate * float64(b.SampleCount)
			}
		}
		if n < c.cfg.MinBucketSamples {
			continue
		}
		meanStated := stated / float64(n)
		meanEmpirical := empirical / float64(n)
		gap := meanStated - meanEmpirical
		label := rangeLabel(ri)
		switch {
		case gap > c.cfg.OverconfidenceMargin:
			flags = append(flags, fmt.Sprintf(
				"overconfident in the %s bucket: stated %.0f%% vs resolved %.0f%% (n=%d)",
				label, meanStated*100, meanEmpirical*100, n))
		case gap < -c.cfg.OverconfidenceMargin:
			flags = append(flags, fmt.Sprintf(
				"underconfident in the %s bucket: stated %.0f%% vs resolved %.0f%% (n=%d)",
				label, meanStated*100, meanEmpirical*100, n))
		}
	}
	return flags
}

// summarize renders the plain-language feedback the executor injects into
// FULL assessment prompts.
func (c *Calibrator) summarize(report *models.CalibrationReport, corrections []models.HumanCorrection) string {
	var b strings.Builder
	wrote := false
	for ri, rng := range probRanges {
		var n int
		var empirical float64
		for _, bk := range report.Buckets {
			if bk.RangeLow == rng[0] && bk.RangeHigh == rng[1] && bk.SampleCount > 0 {
				n += bk.SampleCount
				empirical += bk.EmpiricalResolutionRate * float64(bk.SampleCount)
			}
		}
		if n < c.cfg.MinBucketSamples {
			continue
		}
		if wrote {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Predictions in the %s bucket have resolved at %.0f%% (n=%d).",
			rangeLabel(ri), empirical/float64(n)*100, n)
		wrote = true
	}
	for _, f := range report.Flags {
		if wrote {
			b.WriteString(" ")
		}
		b.WriteString("Note: " + f + ".")
		wrote = true
	}
	if n := len(corrections); n > 0 {
		byType := make(map[string]int)
		for _, corr := range corrections {
			byType[corr.ErrorType]++
		}
		var parts []string
		for _, t := range []string{"overconfident", "underconfident", "wrong_factor", "stale_data", "other"} {
			if byType[t] > 0 {
				parts = append(parts, fmt.Sprintf("%s x%d", t, byType[t]))
			}
		}
		if wrote {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Human reviewers filed %d corrections recently (%s).", n, strings.Join(parts, ", "))
	}
	return b.String()
}

func rangeLabel(ri int) string {
	rng := probRanges[ri]
	return fmt.Sprintf("%.0f-%.0f%%", rng[0]*100, rng[1]*100)
}
