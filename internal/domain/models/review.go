package models

import (
	"time"

	"github.com/google/uuid"
)

// TriggerReason names one additive component of a review item's priority.
type TriggerReason string

const (
	TriggerSignalDisagreement TriggerReason = "signal_disagreement"
	TriggerGradeChange        TriggerReason = "grade_change"
	TriggerPoorBrier          TriggerReason = "poor_brier"
	TriggerMilestoneEvent     TriggerReason = "milestone_event"
	TriggerDegradedCycle      TriggerReason = "degraded_cycle"
)

// ReviewStatus is the queue item lifecycle. Items leave the open queue only
// through an explicit human correction, never by score decay.
type ReviewStatus string

const (
	ReviewOpen            ReviewStatus = "OPEN"
	ReviewResolvedByHuman ReviewStatus = "RESOLVED_BY_HUMAN"
)

// ReviewQueueItem surfaces one deal for manual correction, ranked by
// priority score in [0, 80]. The score is recomputed each cycle.
type ReviewQueueItem struct {
	ID            uuid.UUID
	DealID        string
	CycleDate     string
	PriorityScore int
	Triggers      []TriggerReason
	Status        ReviewStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HumanCorrection is the payload a reviewer submits to close a queue item.
// Corrections feed the next calibration recompute as additional signal.
type HumanCorrection struct {
	DealID         string
	CycleDate      string
	CorrectedGrade string
	CorrectSignal  SignalName
	ErrorType      string
	SubmittedAt    time.Time
}

// OutcomeEvent is one message from the outcome/milestone feed. Delivery is
// at-least-once; handlers must stay idempotent.
type OutcomeEvent struct {
	Kind         string    `json:"kind"` // "resolution", "milestone", "deal_status", "halt"
	PredictionID string    `json:"prediction_id,omitempty"`
	DealID       string    `json:"deal_id"`
	Target       string    `json:"target,omitempty"` // milestone name or status value
	Outcome      int       `json:"outcome"`          // 0 or 1
	ObservedAt   time.Time `json:"observed_at"`
}
