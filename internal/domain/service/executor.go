package service

import (
	"context"
	"time"

	"DealWatch/internal/domain/models"
)

// ExecuteRequest is the router's payload for one executor invocation.
// DELTA requests carry only the changed fields plus the prior grade; FULL
// requests carry the complete context, the calibration feedback summary, and
// the signal weight table.
type ExecuteRequest struct {
	DealID              string
	CycleDate           string
	Strategy            models.Strategy
	Tier                models.Tier
	Context             *models.MaterialContext
	ChangedFields       []models.FieldChange
	PriorGrade          string
	CalibrationFeedback string
	SignalWeights       []models.SignalWeight
}

// PredictionDraft is an executor-emitted prediction before the registry
// assigns it an identity and persists it.
type PredictionDraft struct {
	Type               models.PredictionType
	RiskFactor         models.RiskFactor
	Signal             models.SignalName
	StatedProbability  float64
	ResolutionDeadline time.Time
	Condition          models.ResolutionCondition
}

// ExecuteResult is the executor's assessment output.
type ExecuteResult struct {
	GradeOutput         string
	ProbabilityEstimate float64
	Predictions         []PredictionDraft
}

// AssessmentExecutor produces a risk assessment on the requested model tier.
// Implementations must be safe to retry once per request.
type AssessmentExecutor interface {
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResult, error)
}
