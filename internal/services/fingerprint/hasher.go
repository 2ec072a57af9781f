package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"DealWatch/internal/domain/models"
)

// Field-name prefixes partition the bucketed map by comparison rule.
const (
	prefixCategorical = "cat."
	prefixSpread      = "spread."
	prefixProbability = "prob."
)

// MissingSentinel stands in for a required field the provider did not supply.
// A missing-field fingerprint must still be deterministic and comparable, so
// the field is never silently dropped.
const MissingSentinel = "__missing__"

// HasherConfig carries the bucketing steps. Steps exist to suppress
// market-noise hash churn: a $0.25 spread move inside one step does not
// change the fingerprint.
type HasherConfig struct {
	SpreadStep      float64  // dollars, default 0.50
	ProbabilityStep float64  // fraction, default 0.05
	RequiredFields  []string // categorical field names that must be present
}

// Hasher turns a deal's material facts into a deterministic fingerprint.
type Hasher struct {
	cfg HasherConfig
}

func NewHasher(cfg HasherConfig) *Hasher {
	if cfg.SpreadStep <= 0 {
		cfg.SpreadStep = 0.50
	}
	if cfg.ProbabilityStep <= 0 {
		cfg.ProbabilityStep = 0.05
	}
	if len(cfg.RequiredFields) == 0 {
		cfg.RequiredFields = []string{"regulatory_status", "milestone_state"}
	}
	return &Hasher{cfg: cfg}
}

// Fingerprint buckets the numeric fields, canonicalizes everything with
// sorted keys, and hashes the result. Output depends only on the bucketed
// field values, never on insertion order or wall-clock time.
func (h *Hasher) Fingerprint(mc *models.MaterialContext) (*models.ContextFingerprint, error) {
	if mc == nil {
		return nil, fmt.Errorf("material context is nil")
	}
	if mc.DealID == "" || mc.CycleDate == "" {
		return nil, fmt.Errorf("material context missing deal id or cycle date")
	}

	fields := make(map[string]string, len(mc.Categorical)+len(mc.Spreads)+len(mc.Probabilities))
	for k, v := range mc.Categorical {
		fields[prefixCategorical+k] = v
	}
	for k, v := range mc.Spreads {
		fields[prefixSpread+k] = bucketValue(v, h.cfg.SpreadStep)
	}
	for k, v := range mc.Probabilities {
		fields[prefixProbability+k] = bucketValue(v, h.cfg.ProbabilityStep)
	}
	for _, req := range h.cfg.RequiredFields {
		key := prefixCategorical + req
		if _, ok := fields[key]; !ok {
			fields[key] = MissingSentinel
		}
	}

	return &models.ContextFingerprint{
		DealID:         mc.DealID,
		CycleDate:      mc.CycleDate,
		Hash:           canonicalHash(fields),
		BucketedFields: fields,
	}, nil
}

// bucketValue quantizes v to the nearest step and renders it with fixed
// precision so equal buckets always compare equal as strings.
func bucketValue(v, step float64) string {
	q := math.Round(v/step) * step
	if q == 0 {
		// strip negative zero so values on either side of zero that land in
		// the same bucket render identically
		q = 0
	}
	return fmt.Sprintf("%.4f", q)
}

// canonicalHash digests "key=value" lines in sorted key order.
func canonicalHash(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
