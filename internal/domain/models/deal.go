package models

import "time"

// Magnitude classifies how much a deal's material facts moved between cycles.
type Magnitude string

const (
	MagnitudeNone     Magnitude = "NONE"
	MagnitudeMinor    Magnitude = "MINOR"
	MagnitudeModerate Magnitude = "MODERATE"
	MagnitudeMajor    Magnitude = "MAJOR"
	MagnitudeFirst    Magnitude = "FIRST"
)

// Escalate bumps a magnitude one level. MAJOR and FIRST are terminal.
func (m Magnitude) Escalate() Magnitude {
	switch m {
	case MagnitudeMinor:
		return MagnitudeModerate
	case MagnitudeModerate:
		return MagnitudeMajor
	default:
		return m
	}
}

// RiskFactor partitions predictions for calibration aggregates.
type RiskFactor string

const (
	RiskRegulatory RiskFactor = "regulatory"
	RiskVote       RiskFactor = "vote"
	RiskFinancing  RiskFactor = "financing"
	RiskLegal      RiskFactor = "legal"
)

// RiskFactors lists all recognized factors in stable order.
func RiskFactors() []RiskFactor {
	return []RiskFactor{RiskRegulatory, RiskVote, RiskFinancing, RiskLegal}
}

// MaterialContext is the subset of a deal's facts that matters for change
// detection on a given cycle date. Categorical fields are compared verbatim;
// spreads and probabilities are bucketed before comparison. Field names must
// be stable across cycles (contract with the context provider).
type MaterialContext struct {
	DealID        string
	CycleDate     string // YYYY-MM-DD
	Categorical   map[string]string  // grades, regulatory_status, milestone_state, vote_state
	Spreads       map[string]float64 // dollar spreads
	Probabilities map[string]float64 // implied close probabilities in [0,1]
}

// ContextFingerprint is the deterministic digest of a deal's bucketed
// material facts for one cycle date. Immutable once written.
type ContextFingerprint struct {
	DealID         string
	CycleDate      string
	Hash           string
	BucketedFields map[string]string
}

// FieldChange records a single bucketed field that moved between two
// fingerprints.
type FieldChange struct {
	Field      string
	Prev       string
	Curr       string
	Structural bool // regulatory / milestone / vote-state fields
	Numeric    bool // bucketed spread or probability fields
}

// ChangeVerdict is the classifier's output for one deal and cycle date.
// Derived state: recomputed each cycle from two fingerprints.
type ChangeVerdict struct {
	DealID        string
	CycleDate     string
	Magnitude     Magnitude
	ChangedFields []FieldChange
}

// StructuralChange reports whether any regulatory/milestone/vote field moved.
func (v *ChangeVerdict) StructuralChange() bool {
	for _, c := range v.ChangedFields {
		if c.Structural {
			return true
		}
	}
	return false
}

// CycleEvent is published to the events topic after each per-deal cycle.
type CycleEvent struct {
	DealID        string    `json:"deal_id"`
	CycleDate     string    `json:"cycle_date"`
	Magnitude     Magnitude `json:"magnitude"`
	Strategy      Strategy  `json:"strategy"`
	Tier          Tier      `json:"tier"`
	Degraded      bool      `json:"degraded"`
	PriorityScore int       `json:"priority_score"`
	Timestamp     time.Time `json:"timestamp"`
}
