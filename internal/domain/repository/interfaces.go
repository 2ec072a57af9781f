package repository

import (
	"context"
	"errors"
	"time"

	"DealWatch/internal/domain/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// ContextProvider supplies each deal's material facts per cycle date.
// Field names must be stable across cycles so fingerprints stay comparable.
type ContextProvider interface {
	ActiveDeals(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, dealID, cycleDate string) (*models.MaterialContext, error)
}

// FingerprintStore keeps the latest fingerprint per deal for day-over-day
// comparison. Full history goes to the audit sink.
type FingerprintStore interface {
	Latest(ctx context.Context, dealID string) (*models.ContextFingerprint, error)
	Save(ctx context.Context, fp *models.ContextFingerprint) error
}

// RunStore persists assessment runs. Runs are append-only.
type RunStore interface {
	Save(ctx context.Context, run *models.AssessmentRun) error
	// LastSuccessful returns the most recent run that did not degrade.
	LastSuccessful(ctx context.Context, dealID string) (*models.AssessmentRun, error)
	ListByDeal(ctx context.Context, dealID string, limit int) ([]models.AssessmentRun, error)
}

// PredictionStore persists predictions. Only the registry transitions status.
type PredictionStore interface {
	Insert(ctx context.Context, preds []models.Prediction) error
	Get(ctx context.Context, id uuid.UUID) (*models.Prediction, error)
	// MarkResolved transitions PENDING → RESOLVED. Returns false when the
	// prediction was not PENDING (duplicate or late delivery).
	MarkResolved(ctx context.Context, id uuid.UUID, outcome int, brier float64, observedAt time.Time) (bool, error)
	PendingByCondition(ctx context.Context, dealID, kind, target string) ([]models.Prediction, error)
	ExpirePastDeadline(ctx context.Context, asOf time.Time) (int, error)
	ListResolved(ctx context.Context) ([]models.Prediction, error)
	RecentBrier(ctx context.Context, dealID string, n int) ([]float64, error)
}

// CalibrationStore holds the current calibration report. Replace swaps the
// whole bucket table atomically so readers never see a half-updated set.
type CalibrationStore interface {
	Replace(ctx context.Context, report *models.CalibrationReport) error
	Current(ctx context.Context) (*models.CalibrationReport, error)
}

// SignalWeightStore holds the current signal weight table, replaced whole.
type SignalWeightStore interface {
	Replace(ctx context.Context, weights []models.SignalWeight) error
	Current(ctx context.Context) ([]models.SignalWeight, error)
}

// ReviewStore maintains the human review queue and correction history.
type ReviewStore interface {
	// UpsertOpen recomputes the open item for a deal: score and triggers are
	// replaced, never incremented.
	UpsertOpen(ctx context.Context, item *models.ReviewQueueItem) error
	ListOpen(ctx context.Context, limit int) ([]models.ReviewQueueItem, error)
	// CloseWithCorrection resolves the open item for the deal and records the
	// correction. Returns false when no open item exists.
	CloseWithCorrection(ctx context.Context, corr *models.HumanCorrection) (bool, error)
	ListCorrectionsSince(ctx context.Context, since time.Time) ([]models.HumanCorrection, error)
}

// AuditSink appends immutable history rows. Nothing here is ever updated.
type AuditSink interface {
	AppendFingerprint(ctx context.Context, fp *models.ContextFingerprint) error
	AppendVerdict(ctx context.Context, v *models.ChangeVerdict) error
	AppendRun(ctx context.Context, run *models.AssessmentRun) error
}

// EventPublisher emits per-deal cycle events for downstream consumers.
type EventPublisher interface {
	PublishCycleEvent(ctx context.Context, ev *models.CycleEvent) error
	Close() error
}

// EventStream is a streaming source of outcome/milestone events, the
// websocket alternative to the Kafka feed.
type EventStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.OutcomeEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics abstracts the Prometheus recorder for the domain layer.
type Metrics interface {
	RecordRunRouted(strategy, tier string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCost(spent, avoided float64)
	RecordBrier(signal string, score float64)
	RecordResolution(status string)
	RecordQueueDepth(n int)
}
