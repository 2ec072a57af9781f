package fingerprint

import (
	"testing"

	"DealWatch/internal/domain/models"
)

func fingerprintOf(t *testing.T, h *Hasher, mutate func(mc *models.MaterialContext)) *models.ContextFingerprint {
	t.Helper()
	mc := baseContext()
	if mutate != nil {
		mutate(mc)
	}
	fp, err := h.Fingerprint(mc)
	if err != nil {
		t.Fatalf("fingerprint error: %v", err)
	}
	return fp
}

func TestClassifyFirst(t *testing.T) {
	h := NewHasher(HasherConfig{})
	c := NewClassifier(ClassifierConfig{})

	v := c.Classify(fingerprintOf(t, h, nil), nil)
	if v.Magnitude != models.MagnitudeFirst {
		t.Fatalf("no prior fingerprint should classify FIRST, got %s", v.Magnitude)
	}
}

func TestClassifyNone(t *testing.T) {
	h := NewHasher(HasherConfig{})
	c := NewClassifier(ClassifierConfig{})

	curr := fingerprintOf(t, h, nil)
	prev := fingerprintOf(t, h, nil)
	v := c.Classify(curr, prev)
	if v.Magnitude != models.MagnitudeNone {
		t.Fatalf("equal hashes should classify NONE, got %s", v.Magnitude)
	}
	if len(v.ChangedFields) != 0 {
		t.Fatalf("NONE verdict should carry no changed fields")
	}
}

func TestClassifyMinorNumeric(t *testing.T) {
	h := NewHasher(HasherConfig{})
	c := NewClassifier(ClassifierConfig{})

	prev := fingerprintOf(t, h, nil)
	curr := fingerprintOf(t, h, func(mc *models.MaterialContext) {
		mc.Spreads["gross"] = 4.10
	})
	v := c.Classify(curr, prev)
	if v.Magnitude != models.MagnitudeMinor {
		t.Fatalf("single spread bucket move should be MINOR, got %s", v.Magnitude)
	}
	if len(v.ChangedFields) != 1 || !v.ChangedFields[0].Numeric {
		t.Fatalf("unexpected changed fields: %+v", v.ChangedFields)
	}
}

func TestClassifyStructuralForcesModerate(t *testing.T) {
	h := NewHasher(HasherConfig{})
	c := NewClassifier(ClassifierConfig{})

	prev := fingerprintOf(t, h, nil)
	curr := fingerprintOf(t, h, func(mc *models.MaterialContext) {
		mc.Categorical["regulatory_status"] = "second_request"
	})
	v := c.Classify(curr, prev)
	if v.Magnitude != models.MagnitudeModerate {
		t.Fatalf("structural change should force MODERATE, got %s", v.Magnitude)
	}
	if !v.StructuralChange() {
		t.Fatalf("verdict should report a structural change")
	}
}

func TestClassifyNumericEscalation(t *testing.T) {
	h := NewHasher(HasherConfig{})
	c := NewClassifier(ClassifierConfig{EscalateNumericCount: 3})

	prev := fingerprintOf(t, h, func(mc *models.MaterialContext) {
		mc.Spreads["net"] = 1.00
		mc.Probabilities["model"] = 0.60
	})

	// Three bucketed numeric moves at once: MINOR escalates to MODERATE.
	curr := fingerprintOf(t, h, func(mc *models.MaterialContext) {
		mc.Spreads["gross"] = 4.10
		mc.Spreads["net"] = 2.00
		mc.Probabilities["model"] = 0.40
		mc.Probabilities["market_implied"] = 0.82
	})
	v := c.Classify(curr, prev)
	if v.Magnitude != models.MagnitudeModerate {
		t.Fatalf("three numeric moves should escalate to MODERATE, got %s", v.Magnitude)
	}
}

func TestClassifyStructuralPlusNumericEscalatesToMajor(t *testing.T) {
	h := NewHasher(HasherConfig{})
	c := NewClassifier(ClassifierConfig{EscalateNumericCount: 3})

	prev := fingerprintOf(t, h, func(mc *models.MaterialContext) {
		mc.Spreads["net"] = 1.00
		mc.Probabilities["model"] = 0.60
	})
	curr := fingerprintOf(t, h, func(mc *models.MaterialContext) {
		mc.Categorical["regulatory_status"] = "second_request"
		mc.Spreads["gross"] = 4.10
		mc.Spreads["net"] = 2.00
		mc.Probabilities["model"] = 0.40
		mc.Probabilities["market_implied"] = 0.82
	})
	v := c.Classify(curr, prev)
	if v.Magnitude != models.MagnitudeMajor {
		t.Fatalf("structural plus wide numeric move should be MAJOR, got %s", v.Magnitude)
	}
}

func TestClassifyFieldAppearance(t *testing.T) {
	h := NewHasher(HasherConfig{})
	c := NewClassifier(ClassifierConfig{})

	prev := fingerprintOf(t, h, nil)
	curr := fingerprintOf(t, h, func(mc *models.MaterialContext) {
		mc.Categorical["vote_state"] = "scheduled"
	})
	v := c.Classify(curr, prev)
	if v.Magnitude != models.MagnitudeModerate {
		t.Fatalf("new structural field should force MODERATE, got %s", v.Magnitude)
	}
	if v.ChangedFields[0].Prev != "" {
		t.Fatalf("appearing field should diff against empty prev, got %q", v.ChangedFields[0].Prev)
	}
}
