package models

import (
	"time"

	"github.com/google/uuid"
)

// Strategy is how much new computation a cycle requires.
type Strategy string

const (
	StrategyReuse Strategy = "REUSE"
	StrategyDelta Strategy = "DELTA"
	StrategyFull  Strategy = "FULL"
)

// Tier is the model capability/cost tier the router selects.
type Tier string

const (
	TierNone  Tier = "none"
	TierCheap Tier = "cheap"
	TierMid   Tier = "mid"
	TierHigh  Tier = "high"
)

// AssessmentRun is the router's record of one deal's daily assessment.
// REUSE runs copy the prior cycle's grade and probability at cost zero and
// never touch the executor. ErrorNote is set when the executor failed and the
// run degraded to a reuse of the last successful output.
type AssessmentRun struct {
	ID                  uuid.UUID
	DealID              string
	CycleDate           string
	Strategy            Strategy
	Tier                Tier
	CostEstimate        float64
	ProbabilityEstimate float64
	GradeOutput         string
	ErrorNote           string
	CreatedAt           time.Time
}

// Degraded reports whether this run fell back to REUSE after executor failure.
func (r *AssessmentRun) Degraded() bool { return r.ErrorNote != "" }
