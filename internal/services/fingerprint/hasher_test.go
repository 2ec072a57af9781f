package fingerprint

import (
	"testing"

	"DealWatch/internal/domain/models"
)

func baseContext() *models.MaterialContext {
	return &models.MaterialContext{
		DealID:    "MSFT-ATVI",
		CycleDate: "2026-08-25",
		Categorical: map[string]string{
			"regulatory_status": "phase2",
			"milestone_state":   "vote_pending",
		},
		Spreads:       map[string]float64{"gross": 2.31},
		Probabilities: map[string]float64{"market_implied": 0.82},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	h := NewHasher(HasherConfig{})
	a, err := h.Fingerprint(baseContext())
	if err != nil {
		t.Fatalf("fingerprint error: %v", err)
	}
	b, err := h.Fingerprint(baseContext())
	if err != nil {
		t.Fatalf("fingerprint error: %v", err)
	}
	if a.Hash != b.Hash {
		t.Fatalf("same context hashed differently: %s vs %s", a.Hash, b.Hash)
	}
}

func TestFingerprintSpreadBucketing(t *testing.T) {
	h := NewHasher(HasherConfig{SpreadStep: 0.50})

	mc := baseContext()
	mc.Spreads["gross"] = 2.31
	a, _ := h.Fingerprint(mc)

	// Inside the same $0.50 bucket: no hash change.
	mc = baseContext()
	mc.Spreads["gross"] = 2.44
	b, _ := h.Fingerprint(mc)
	if a.Hash != b.Hash {
		t.Fatalf("intra-bucket move changed hash")
	}

	// Across a bucket boundary: hash changes.
	mc = baseContext()
	mc.Spreads["gross"] = 2.80
	c, _ := h.Fingerprint(mc)
	if a.Hash == c.Hash {
		t.Fatalf("cross-bucket move kept hash")
	}
}

func TestFingerprintProbabilityBucketing(t *testing.T) {
	h := NewHasher(HasherConfig{ProbabilityStep: 0.05})

	mc := baseContext()
	mc.Probabilities["market_implied"] = 0.81
	a, _ := h.Fingerprint(mc)

	mc = baseContext()
	mc.Probabilities["market_implied"] = 0.79
	b, _ := h.Fingerprint(mc)
	if a.Hash != b.Hash {
		t.Fatalf("both values round to the 0.80 bucket, hash should match")
	}

	mc = baseContext()
	mc.Probabilities["market_implied"] = 0.71
	c, _ := h.Fingerprint(mc)
	if a.Hash == c.Hash {
		t.Fatalf("0.70 bucket should hash differently from 0.80")
	}
}

func TestFingerprintZeroBucketIgnoresSign(t *testing.T) {
	h := NewHasher(HasherConfig{SpreadStep: 0.50})

	// A spread crossing zero (market price above the offer) stays in the
	// zero bucket; the sign of the raw value must not leak into the hash.
	mc := baseContext()
	mc.Spreads["gross"] = 0.10
	a, _ := h.Fingerprint(mc)

	mc = baseContext()
	mc.Spreads["gross"] = -0.10
	b, _ := h.Fingerprint(mc)

	if a.BucketedFields["spread.gross"] != "0.0000" {
		t.Fatalf("positive side rendered %q", a.BucketedFields["spread.gross"])
	}
	if b.BucketedFields["spread.gross"] != "0.0000" {
		t.Fatalf("negative side rendered %q", b.BucketedFields["spread.gross"])
	}
	if a.Hash != b.Hash {
		t.Fatalf("same zero bucket hashed differently: %s vs %s", a.Hash, b.Hash)
	}
}

func TestFingerprintMissingRequiredField(t *testing.T) {
	h := NewHasher(HasherConfig{RequiredFields: []string{"regulatory_status", "vote_state"}})
	mc := baseContext()
	fp, err := h.Fingerprint(mc)
	if err != nil {
		t.Fatalf("fingerprint error: %v", err)
	}
	if fp.BucketedFields["cat.vote_state"] != MissingSentinel {
		t.Fatalf("missing required field not sentinel-filled: %q", fp.BucketedFields["cat.vote_state"])
	}

	// Sentinel keeps the hash deterministic and distinct from a real value.
	mc2 := baseContext()
	mc2.Categorical["vote_state"] = "scheduled"
	fp2, _ := h.Fingerprint(mc2)
	if fp.Hash == fp2.Hash {
		t.Fatalf("sentinel and real value hashed the same")
	}
}

func TestFingerprintRejectsBadContext(t *testing.T) {
	h := NewHasher(HasherConfig{})
	if _, err := h.Fingerprint(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
	mc := baseContext()
	mc.DealID = ""
	if _, err := h.Fingerprint(mc); err == nil {
		t.Fatalf("expected error for empty deal id")
	}
}
