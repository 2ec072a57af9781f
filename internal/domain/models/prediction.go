package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PredictionType enumerates the falsifiable statement kinds an assessment
// may emit.
type PredictionType string

const (
	PredDealCloses          PredictionType = "deal_closes"
	PredMilestoneCompletion PredictionType = "milestone_completion"
	PredSpreadDirection     PredictionType = "spread_direction"
	PredBreakPrice          PredictionType = "break_price"
)

// PredictionStatus is the registry-owned lifecycle state.
type PredictionStatus string

const (
	StatusPending           PredictionStatus = "PENDING"
	StatusResolved          PredictionStatus = "RESOLVED"
	StatusExpiredUnresolved PredictionStatus = "EXPIRED_UNRESOLVED"
)

// SignalName tags which independent source produced a probability estimate.
type SignalName string

const (
	SignalMarketImplied  SignalName = "market_implied"
	SignalAnalystEntered SignalName = "analyst_entered"
	SignalModelEstimated SignalName = "model_estimated"
)

// SignalNames lists all recognized signals in stable order.
func SignalNames() []SignalName {
	return []SignalName{SignalMarketImplied, SignalAnalystEntered, SignalModelEstimated}
}

// ResolutionCondition ties a prediction to a machine-checkable event: a named
// milestone completing, or the deal reaching a terminal status.
type ResolutionCondition struct {
	Kind   string `json:"kind"`   // "milestone" or "deal_status"
	Target string `json:"target"` // milestone name or status value
}

// Validate rejects conditions that cannot be checked against the event feed.
func (c ResolutionCondition) Validate() error {
	switch c.Kind {
	case "milestone", "deal_status":
	default:
		return fmt.Errorf("condition kind %q is not resolvable", c.Kind)
	}
	if c.Target == "" {
		return fmt.Errorf("condition target is empty")
	}
	return nil
}

// Prediction is a falsifiable probability statement attached to an
// assessment run. Immutable once RESOLVED or EXPIRED_UNRESOLVED.
type Prediction struct {
	ID                  uuid.UUID
	DealID              string
	RunID               uuid.UUID
	CreatedCycleDate    string
	Type                PredictionType
	RiskFactor          RiskFactor
	Signal              SignalName
	StatedProbability   float64
	ResolutionDeadline  time.Time
	ResolutionCondition ResolutionCondition
	Status              PredictionStatus
	ActualOutcome       *int
	BrierScore          *float64
	ResolvedAt          *time.Time
}

// Brier is the squared error between a stated probability and the observed
// binary outcome. Lower is better calibrated.
func Brier(stated float64, outcome int) float64 {
	d := stated - float64(outcome)
	return d * d
}

// CalibrationBucket aggregates resolved predictions in one probability range
// for one risk factor. Recomputed from scratch each engine run.
type CalibrationBucket struct {
	RangeLow                float64
	RangeHigh               float64
	RiskFactor              RiskFactor
	SampleCount             int
	MeanStatedProbability   float64
	EmpiricalResolutionRate float64
	MeanBrier               float64
}

// CalibrationReport is the engine's full output: the recomputed bucket table
// plus the natural-language feedback summary the executor consumes.
type CalibrationReport struct {
	ComputedAt time.Time
	Buckets    []CalibrationBucket
	Summary    string
	Flags      []string // overconfidence/underconfidence notes per bucket
}

// SignalWeight is one signal's inverse-error weight. Weight stays uniform
// until SampleCount reaches the activation threshold.
type SignalWeight struct {
	Signal          SignalName
	HistoricalBrier float64
	Weight          float64
	SampleCount     int
	Activated       bool
}
