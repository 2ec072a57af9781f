package models

// Requests for the review surface and ops HTTP endpoints. Defined in domain
// for consistency and reuse.

type ReviewQueueRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type CorrectionRequest struct {
	CycleDate      string `json:"cycle_date" validate:"required,datetime=2006-01-02"`
	CorrectedGrade string `json:"corrected_grade" validate:"omitempty,max=8"`
	CorrectSignal  string `json:"correct_signal" validate:"omitempty,oneof=market_implied analyst_entered model_estimated"`
	ErrorType      string `json:"error_type" validate:"omitempty,oneof=overconfident underconfident wrong_factor stale_data other"`
}

type ResolveRequest struct {
	Outcome    *int   `json:"outcome" validate:"required,min=0,max=1"`
	ObservedAt string `json:"observed_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type RunHistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"30" validate:"gte=1,lte=365"`
}
