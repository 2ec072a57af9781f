package assess

import (
	"context"
	"fmt"
	"time"

	"DealWatch/internal/domain/models"
	domsvc "DealWatch/internal/domain/service"
)

// HTTPExecutor invokes the external model service over HTTP. The tier is
// part of the payload; the service maps it to a concrete model. Requests are
// idempotent-safe for a single retry.
type HTTPExecutor struct {
	base *HTTPServiceBase
}

func NewHTTPExecutor(baseURL string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{base: NewHTTPServiceBase(baseURL, timeout)}
}

type assessReq struct {
	DealID        string               `json:"deal_id"`
	CycleDate     string               `json:"cycle_date"`
	Strategy      string               `json:"strategy"`
	Tier          string               `json:"tier"`
	Categorical   map[string]string    `json:"categorical,omitempty"`
	Spreads       map[string]float64   `json:"spreads,omitempty"`
	Probabilities map[string]float64   `json:"probabilities,omitempty"`
	ChangedFields []changedField       `json:"changed_fields,omitempty"`
	PriorGrade    string               `json:"prior_grade,omitempty"`
	Calibration   string               `json:"calibration_feedback,omitempty"`
	SignalWeights map[string]float64   `json:"signal_weights,omitempty"`
}

type changedField struct {
	Field string `json:"field"`
	Prev  string `json:"prev"`
	Curr  string `json:"curr"`
}

type assessResp struct {
	Grade       string           `json:"grade"`
	Probability float64          `json:"probability"`
	Predictions []predictionResp `json:"predictions"`
}

type predictionResp struct {
	Type        string  `json:"type"`
	RiskFactor  string  `json:"risk_factor"`
	Signal      string  `json:"signal"`
	Probability float64 `json:"probability"`
	DeadlineISO string  `json:"deadline"`
	Condition   struct {
		Kind   string `json:"kind"`
		Target string `json:"target"`
	} `json:"condition"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, req *domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
	body := assessReq{
		DealID:     req.DealID,
		CycleDate:  req.CycleDate,
		Strategy:   string(req.Strategy),
		Tier:       string(req.Tier),
		PriorGrade: req.PriorGrade,
	}
	// DELTA carries only the changed fields; FULL carries the whole context
	// plus the feedback artifacts.
	for _, cf := range req.ChangedFields {
		body.ChangedFields = append(body.ChangedFields, changedField{Field: cf.Field, Prev: cf.Prev, Curr: cf.Curr})
	}
	if req.Context != nil {
		body.Categorical = req.Context.Categorical
		body.Spreads = req.Context.Spreads
		body.Probabilities = req.Context.Probabilities
	}
	body.Calibration = req.CalibrationFeedback
	if len(req.SignalWeights) > 0 {
		body.SignalWeights = make(map[string]float64, len(req.SignalWeights))
		for _, w := range req.SignalWeights {
			body.SignalWeights[string(w.Signal)] = w.Weight
		}
	}

	var resp assessResp
	if err := e.base.PostJSON(ctx, "/v1/assess", body, &resp); err != nil {
		return nil, fmt.Errorf("assess %s: %w", req.DealID, err)
	}

	result := &domsvc.ExecuteResult{
		GradeOutput:         resp.Grade,
		ProbabilityEstimate: resp.Probability,
	}
	for _, p := range resp.Predictions {
		deadline, err := time.Parse(time.RFC3339, p.DeadlineISO)
		if err != nil {
			return nil, fmt.Errorf("prediction deadline %q: %w", p.DeadlineISO, err)
		}
		result.Predictions = append(result.Predictions, domsvc.PredictionDraft{
			Type:               models.PredictionType(p.Type),
			RiskFactor:         models.RiskFactor(p.RiskFactor),
			Signal:             models.SignalName(p.Signal),
			StatedProbability:  p.Probability,
			ResolutionDeadline: deadline,
			Condition:          models.ResolutionCondition{Kind: p.Condition.Kind, Target: p.Condition.Target},
		})
	}
	return result, nil
}

var _ domsvc.AssessmentExecutor = (*HTTPExecutor)(nil)
