package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"

	"github.com/google/uuid"
)

// PostgresPredictionStore persists predictions. Status transitions happen
// through conditional updates so duplicate feed deliveries cannot overwrite
// a settled score.
type PostgresPredictionStore struct {
	db *sql.DB
}

func NewPostgresPredictionStore(db *sql.DB) *PostgresPredictionStore {
	return &PostgresPredictionStore{db: db}
}

var _ domrepo.PredictionStore = (*PostgresPredictionStore)(nil)

const predictionColumns = `id, run_id, deal_id, created_cycle_date, type, risk_factor, signal,
	stated_probability, resolution_deadline, condition_kind, condition_target,
	status, actual_outcome, brier_score, resolved_at`

func (s *PostgresPredictionStore) Insert(ctx context.Context, preds []models.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert predictions: %w", err)
	}
	defer tx.Rollback()

	for _, p := range preds {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO predictions (`+predictionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			p.ID, p.RunID, p.DealID, p.CreatedCycleDate, p.Type, p.RiskFactor, p.Signal,
			p.StatedProbability, p.ResolutionDeadline, p.ResolutionCondition.Kind, p.ResolutionCondition.Target,
			p.Status, p.ActualOutcome, p.BrierScore, p.ResolvedAt)
		if err != nil {
			return fmt.Errorf("insert prediction %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresPredictionStore) Get(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("query prediction: %w", err)
	}
	return p, nil
}

func (s *PostgresPredictionStore) MarkResolved(ctx context.Context, id uuid.UUID, outcome int, brier float64, observedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE predictions
		 SET status = $1, actual_outcome = $2, brier_score = $3, resolved_at = $4
		 WHERE id = $5 AND status = $6`,
		models.StatusResolved, outcome, brier, observedAt, id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresPredictionStore) PendingByCondition(ctx context.Context, dealID, kind, target string) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE deal_id = $1 AND condition_kind = $2 AND condition_target = $3 AND status = $4`,
		dealID, kind, target, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending by condition: %w", err)
	}
	defer rows.Close()
	return collectPredictions(rows)
}

func (s *PostgresPredictionStore) ExpirePastDeadline(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE predictions SET status = $1
		 WHERE status = $2 AND resolution_deadline < $3`,
		models.StatusExpiredUnresolved, models.StatusPending, asOf)
	if err != nil {
		return 0, fmt.Errorf("expire predictions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresPredictionStore) ListResolved(ctx context.Context) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE status = $1`,
		models.StatusResolved)
	if err != nil {
		return nil, fmt.Errorf("query resolved predictions: %w", err)
	}
	defer rows.Close()
	return collectPredictions(rows)
}

func (s *PostgresPredictionStore) RecentBrier(ctx context.Context, dealID string, n int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT brier_score FROM predictions
		 WHERE deal_id = $1 AND status = $2
		 ORDER BY resolved_at DESC LIMIT $3`,
		dealID, models.StatusResolved, n)
	if err != nil {
		return nil, fmt.Errorf("query recent brier: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, err
		}
		out = append(out, score)
	}
	return out, rows.Err()
}

func scanPrediction(row rowScanner) (*models.Prediction, error) {
	var p models.Prediction
	err := row.Scan(&p.ID, &p.RunID, &p.DealID, &p.CreatedCycleDate, &p.Type, &p.RiskFactor, &p.Signal,
		&p.StatedProbability, &p.ResolutionDeadline, &p.ResolutionCondition.Kind, &p.ResolutionCondition.Target,
		&p.Status, &p.ActualOutcome, &p.BrierScore, &p.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPredictions(rows *sql.Rows) ([]models.Prediction, error) {
	var out []models.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
