package fingerprint

import (
	"sort"
	"strings"

	"DealWatch/internal/domain/models"
)

// ClassifierConfig carries the change-policy tuning constants. The ordering
// itself — structural changes dominate, price noise is secondary — is fixed.
type ClassifierConfig struct {
	// StructuralFields are the categorical field names whose change alone
	// forces at least MODERATE.
	StructuralFields []string
	// EscalateNumericCount is how many simultaneous bucketed numeric changes
	// bump the magnitude one level. Default 3.
	EscalateNumericCount int
}

// Classifier compares today's fingerprint against yesterday's.
type Classifier struct {
	cfg        ClassifierConfig
	structural map[string]bool
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	if len(cfg.StructuralFields) == 0 {
		cfg.StructuralFields = []string{"regulatory_status", "milestone_state", "vote_state"}
	}
	if cfg.EscalateNumericCount <= 0 {
		cfg.EscalateNumericCount = 3
	}
	structural := make(map[string]bool, len(cfg.StructuralFields))
	for _, f := range cfg.StructuralFields {
		structural[prefixCategorical+f] = true
	}
	return &Classifier{cfg: cfg, structural: structural}
}

// Classify derives the change verdict. Absent prior fingerprint means FIRST:
// there is no basis for a delta or a reuse. Equal hashes mean NONE. Otherwise
// magnitude follows from the count and category of changed fields.
func (c *Classifier) Classify(curr, prev *models.ContextFingerprint) *models.ChangeVerdict {
	v := &models.ChangeVerdict{DealID: curr.DealID, CycleDate: curr.CycleDate}

	if prev == nil {
		v.Magnitude = models.MagnitudeFirst
		return v
	}
	if curr.Hash == prev.Hash {
		v.Magnitude = models.MagnitudeNone
		return v
	}

	v.ChangedFields = diffFields(curr.BucketedFields, prev.BucketedFields, c.structural)

	numeric := 0
	structural := false
	for _, ch := range v.ChangedFields {
		if ch.Numeric {
			numeric++
		}
		if ch.Structural {
			structural = true
		}
	}

	magnitude := models.MagnitudeMinor
	if structural {
		magnitude = models.MagnitudeModerate
	}
	if numeric >= c.cfg.EscalateNumericCount {
		magnitude = magnitude.Escalate()
	}
	v.Magnitude = magnitude
	return v
}

// diffFields walks the union of both field sets in sorted order. A field
// present on only one side counts as changed against the empty string.
func diffFields(curr, prev map[string]string, structural map[string]bool) []models.FieldChange {
	keys := make(map[string]struct{}, len(curr))
	for k := range curr {
		keys[k] = struct{}{}
	}
	for k := range prev {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []models.FieldChange
	for _, k := range sorted {
		cv, pv := curr[k], prev[k]
		if cv == pv {
			continue
		}
		changes = append(changes, models.FieldChange{
			Field:      k,
			Prev:       pv,
			Curr:       cv,
			Structural: structural[k],
			Numeric:    isNumericField(k),
		})
	}
	return changes
}

func isNumericField(key string) bool {
	return strings.HasPrefix(key, prefixSpread) || strings.HasPrefix(key, prefixProbability)
}
