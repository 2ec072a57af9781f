package api

import (
	"errors"
	"time"

	models "DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	svccache "DealWatch/internal/service/cache"
	"DealWatch/internal/service/metrics"
	"DealWatch/internal/usecase"
	xhttp "DealWatch/pkg/http"
	xlogger "DealWatch/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ReviewEchoHandler exposes the review surface and the ops endpoints.
type ReviewEchoHandler struct {
	logger      *xlogger.Logger
	flagger     *usecase.Flagger
	registry    *usecase.Registry
	reviews     domrepo.ReviewStore
	runs        domrepo.RunStore
	calibration domrepo.CalibrationStore
	weights     domrepo.SignalWeightStore
	reads       *svccache.TTLCache
}

// readTTL bounds staleness of the calibration and weights endpoints. Both
// tables only change when a recompute job lands.
const readTTL = 30 * time.Second

func NewReviewEchoHandler(
	logger *xlogger.Logger,
	flagger *usecase.Flagger,
	registry *usecase.Registry,
	reviews domrepo.ReviewStore,
	runs domrepo.RunStore,
	calibration domrepo.CalibrationStore,
	weights domrepo.SignalWeightStore,
) *ReviewEchoHandler {
	metrics.Register()
	return &ReviewEchoHandler{
		logger:      logger,
		flagger:     flagger,
		registry:    registry,
		reviews:     reviews,
		runs:        runs,
		calibration: calibration,
		weights:     weights,
		reads:       svccache.NewTTLCache(),
	}
}

func (h *ReviewEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/review-queue", h.Queue)
	g.POST("/review-queue/:dealID/correction", h.Correct)
	g.POST("/predictions/:id/resolve", h.Resolve)
	g.GET("/calibration", h.Calibration)
	g.GET("/weights", h.Weights)
	g.GET("/deals/:dealID/runs", h.Runs)
}

func (h *ReviewEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// observe records endpoint latency; handlers call it via defer.
func observe(endpoint string, start time.Time) {
	metrics.ReviewLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Queue lists open review items ranked by priority.
func (h *ReviewEchoHandler) Queue(c echo.Context) error {
	defer observe("queue", time.Now())
	req := &models.ReviewQueueRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	items, err := h.reviews.ListOpen(c.Request().Context(), req.Limit)
	if err != nil {
		metrics.ReviewErrors.WithLabelValues("queue").Inc()
		h.logger.Error("review queue list error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, items, int64(len(items)))
}

// Correct closes the deal's open review item with a human correction.
func (h *ReviewEchoHandler) Correct(c echo.Context) error {
	defer observe("correct", time.Now())
	dealID := c.Param("dealID")
	req := &models.CorrectionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	corr := &models.HumanCorrection{
		DealID:         dealID,
		CycleDate:      req.CycleDate,
		CorrectedGrade: req.CorrectedGrade,
		CorrectSignal:  models.SignalName(req.CorrectSignal),
		ErrorType:      req.ErrorType,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := h.flagger.Close(c.Request().Context(), corr); err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.NotFoundResponse(c, "no open review item for deal")
		}
		metrics.ReviewErrors.WithLabelValues("correct").Inc()
		h.logger.Error("review correction error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, corr)
}

// Resolve applies an outcome to a prediction, same idempotent path as the
// outcome feed.
func (h *ReviewEchoHandler) Resolve(c echo.Context) error {
	defer observe("resolve", time.Now())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return xhttp.BadRequestResponse(c, "invalid prediction id")
	}
	req := &models.ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	observedAt := time.Now().UTC()
	if req.ObservedAt != "" {
		observedAt, err = time.Parse(time.RFC3339, req.ObservedAt)
		if err != nil {
			return xhttp.BadRequestResponse(c, "invalid observed_at")
		}
	}
	if err := h.registry.Resolve(c.Request().Context(), id, *req.Outcome, observedAt); err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.NotFoundResponse(c, "prediction not found")
		}
		metrics.ReviewErrors.WithLabelValues("resolve").Inc()
		h.logger.Error("prediction resolve error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"prediction_id": id.String()})
}

// Calibration returns the current bucket table and feedback summary.
func (h *ReviewEchoHandler) Calibration(c echo.Context) error {
	if v, ok := h.reads.Get("calibration"); ok {
		return xhttp.SuccessResponse(c, v.(*models.CalibrationReport))
	}
	report, err := h.calibration.Current(c.Request().Context())
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.SuccessResponse(c, &models.CalibrationReport{})
		}
		h.logger.Error("calibration read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.reads.Set("calibration", report, readTTL)
	return xhttp.SuccessResponse(c, report)
}

// Weights returns the current signal weight table.
func (h *ReviewEchoHandler) Weights(c echo.Context) error {
	if v, ok := h.reads.Get("weights"); ok {
		cached := v.([]models.SignalWeight)
		return xhttp.ListResponse(c, cached, int64(len(cached)))
	}
	weights, err := h.weights.Current(c.Request().Context())
	if err != nil {
		h.logger.Error("weights read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.reads.Set("weights", weights, readTTL)
	return xhttp.ListResponse(c, weights, int64(len(weights)))
}

// Runs returns a deal's recent assessment runs, newest first.
func (h *ReviewEchoHandler) Runs(c echo.Context) error {
	dealID := c.Param("dealID")
	req := &models.RunHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := h.runs.ListByDeal(c.Request().Context(), dealID, req.Limit)
	if err != nil {
		h.logger.Error("run history error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}
