package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	domsvc "DealWatch/internal/domain/service"
	applogger "DealWatch/pkg/logger"

	"github.com/google/uuid"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

// fakeMetrics counts recorder calls by name so tests can assert on them.
type fakeMetrics struct {
	mu          sync.Mutex
	counts      map[string]int
	lastAvoided float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counts: make(map[string]int)}
}

func (m *fakeMetrics) bump(k string) {
	m.mu.Lock()
	m.counts[k]++
	m.mu.Unlock()
}

func (m *fakeMetrics) count(k string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[k]
}

func (m *fakeMetrics) RecordRunRouted(strategy, tier string) { m.bump("routed:" + strategy + "/" + tier) }
func (m *fakeMetrics) RecordError(kind string)               { m.bump("error:" + kind) }
func (m *fakeMetrics) RecordLatency(op string, _ float64)    { m.bump("latency:" + op) }
func (m *fakeMetrics) RecordCost(_, avoided float64) {
	m.mu.Lock()
	m.lastAvoided = avoided
	m.mu.Unlock()
	m.bump("cost")
}

func (m *fakeMetrics) avoidedCost() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAvoided
}
func (m *fakeMetrics) RecordBrier(signal string, _ float64)  { m.bump("brier:" + signal) }
func (m *fakeMetrics) RecordResolution(status string)        { m.bump("resolution:" + status) }
func (m *fakeMetrics) RecordQueueDepth(_ int)                { m.bump("depth") }

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(req *domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error)
}

func (e *fakeExecutor) Execute(_ context.Context, req *domsvc.ExecuteRequest) (*domsvc.ExecuteResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.fn(req)
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeRunStore struct {
	mu   sync.Mutex
	runs []models.AssessmentRun
}

func (s *fakeRunStore) Save(_ context.Context, run *models.AssessmentRun) error {
	s.mu.Lock()
	s.runs = append(s.runs, *run)
	s.mu.Unlock()
	return nil
}

func (s *fakeRunStore) LastSuccessful(_ context.Context, dealID string) (*models.AssessmentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].DealID == dealID && s.runs[i].ErrorNote == "" {
			r := s.runs[i]
			return &r, nil
		}
	}
	return nil, domrepo.ErrNotFound
}

func (s *fakeRunStore) ListByDeal(_ context.Context, dealID string, limit int) ([]models.AssessmentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AssessmentRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].DealID == dealID {
			out = append(out, s.runs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakePredictionStore struct {
	mu    sync.Mutex
	preds map[uuid.UUID]*models.Prediction
	brier map[string][]float64 // per-deal recent scores for RecentBrier
}

func newFakePredictionStore() *fakePredictionStore {
	return &fakePredictionStore{
		preds: make(map[uuid.UUID]*models.Prediction),
		brier: make(map[string][]float64),
	}
}

func (s *fakePredictionStore) Insert(_ context.Context, preds []models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range preds {
		p := preds[i]
		s.preds[p.ID] = &p
	}
	return nil
}

func (s *fakePredictionStore) Get(_ context.Context, id uuid.UUID) (*models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.preds[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakePredictionStore) MarkResolved(_ context.Context, id uuid.UUID, outcome int, brier float64, observedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.preds[id]
	if !ok {
		return false, domrepo.ErrNotFound
	}
	if p.Status != models.StatusPending {
		return false, nil
	}
	p.Status = models.StatusResolved
	p.ActualOutcome = &outcome
	p.BrierScore = &brier
	p.ResolvedAt = &observedAt
	return true, nil
}

func (s *fakePredictionStore) PendingByCondition(_ context.Context, dealID, kind, target string) ([]models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Prediction
	for _, p := range s.preds {
		if p.Status == models.StatusPending && p.DealID == dealID &&
			p.ResolutionCondition.Kind == kind && p.ResolutionCondition.Target == target {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePredictionStore) ExpirePastDeadline(_ context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.preds {
		if p.Status == models.StatusPending && p.ResolutionDeadline.Before(asOf) {
			p.Status = models.StatusExpiredUnresolved
			n++
		}
	}
	return n, nil
}

func (s *fakePredictionStore) ListResolved(_ context.Context) ([]models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Prediction
	for _, p := range s.preds {
		if p.Status == models.StatusResolved {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePredictionStore) RecentBrier(_ context.Context, dealID string, n int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := s.brier[dealID]
	if len(scores) > n {
		scores = scores[:n]
	}
	return scores, nil
}

type fakeCalibrationStore struct {
	mu     sync.Mutex
	report *models.CalibrationReport
}

func (s *fakeCalibrationStore) Replace(_ context.Context, report *models.CalibrationReport) error {
	s.mu.Lock()
	s.report = report
	s.mu.Unlock()
	return nil
}

func (s *fakeCalibrationStore) Current(_ context.Context) (*models.CalibrationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil, domrepo.ErrNotFound
	}
	return s.report, nil
}

type fakeWeightStore struct {
	mu      sync.Mutex
	weights []models.SignalWeight
}

func (s *fakeWeightStore) Replace(_ context.Context, weights []models.SignalWeight) error {
	s.mu.Lock()
	s.weights = weights
	s.mu.Unlock()
	return nil
}

func (s *fakeWeightStore) Current(_ context.Context) ([]models.SignalWeight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weights, nil
}

type fakeReviewStore struct {
	mu          sync.Mutex
	open        map[string]*models.ReviewQueueItem
	corrections []models.HumanCorrection
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{open: make(map[string]*models.ReviewQueueItem)}
}

func (s *fakeReviewStore) UpsertOpen(_ context.Context, item *models.ReviewQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.open[item.DealID]; ok {
		existing.PriorityScore = item.PriorityScore
		existing.Triggers = item.Triggers
		existing.CycleDate = item.CycleDate
		existing.UpdatedAt = item.UpdatedAt
		return nil
	}
	cp := *item
	s.open[item.DealID] = &cp
	return nil
}

func (s *fakeReviewStore) ListOpen(_ context.Context, limit int) ([]models.ReviewQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReviewQueueItem
	for _, item := range s.open {
		out = append(out, *item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeReviewStore) CloseWithCorrection(_ context.Context, corr *models.HumanCorrection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[corr.DealID]; !ok {
		return false, nil
	}
	delete(s.open, corr.DealID)
	s.corrections = append(s.corrections, *corr)
	return true, nil
}

func (s *fakeReviewStore) ListCorrectionsSince(_ context.Context, since time.Time) ([]models.HumanCorrection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.HumanCorrection
	for _, c := range s.corrections {
		if !c.SubmittedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeContextProvider struct {
	deals    []string
	contexts map[string]*models.MaterialContext
}

func (p *fakeContextProvider) ActiveDeals(_ context.Context) ([]string, error) {
	return p.deals, nil
}

func (p *fakeContextProvider) Fetch(_ context.Context, dealID, _ string) (*models.MaterialContext, error) {
	mc, ok := p.contexts[dealID]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return mc, nil
}

type fakeFingerprintStore struct {
	mu     sync.Mutex
	latest map[string]*models.ContextFingerprint
}

func newFakeFingerprintStore() *fakeFingerprintStore {
	return &fakeFingerprintStore{latest: make(map[string]*models.ContextFingerprint)}
}

func (s *fakeFingerprintStore) Latest(_ context.Context, dealID string) (*models.ContextFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.latest[dealID]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return fp, nil
}

func (s *fakeFingerprintStore) Save(_ context.Context, fp *models.ContextFingerprint) error {
	s.mu.Lock()
	s.latest[fp.DealID] = fp
	s.mu.Unlock()
	return nil
}

type fakeAuditSink struct {
	mu           sync.Mutex
	fingerprints int
	verdicts     int
	runs         int
}

func (s *fakeAuditSink) AppendFingerprint(context.Context, *models.ContextFingerprint) error {
	s.mu.Lock()
	s.fingerprints++
	s.mu.Unlock()
	return nil
}

func (s *fakeAuditSink) AppendVerdict(context.Context, *models.ChangeVerdict) error {
	s.mu.Lock()
	s.verdicts++
	s.mu.Unlock()
	return nil
}

func (s *fakeAuditSink) AppendRun(context.Context, *models.AssessmentRun) error {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.CycleEvent
}

func (p *fakePublisher) PublishCycleEvent(_ context.Context, ev *models.CycleEvent) error {
	p.mu.Lock()
	p.events = append(p.events, *ev)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// goodDrafts builds the minimum valid draft set for a cycle date.
func goodDrafts(cycleDate string) []domsvc.PredictionDraft {
	cycle, _ := time.Parse("2006-01-02", cycleDate)
	deadline := cycle.AddDate(0, 1, 0)
	return []domsvc.PredictionDraft{
		{
			Type:               models.PredDealCloses,
			RiskFactor:         models.RiskRegulatory,
			Signal:             models.SignalModelEstimated,
			StatedProbability:  0.85,
			ResolutionDeadline: deadline,
			Condition:          models.ResolutionCondition{Kind: "deal_status", Target: "closed"},
		},
		{
			Type:               models.PredMilestoneCompletion,
			RiskFactor:         models.RiskRegulatory,
			Signal:             models.SignalMarketImplied,
			StatedProbability:  0.70,
			ResolutionDeadline: deadline,
			Condition:          models.ResolutionCondition{Kind: "milestone", Target: "hsr_clearance"},
		},
	}
}
