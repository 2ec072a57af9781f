package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
)

// PostgresRunStore persists assessment runs. Rows are append-only.
type PostgresRunStore struct {
	db *sql.DB
}

func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

var _ domrepo.RunStore = (*PostgresRunStore)(nil)

const runColumns = `id, deal_id, cycle_date, strategy, tier, cost_estimate, probability, grade_output, error_note, created_at`

func (s *PostgresRunStore) Save(ctx context.Context, run *models.AssessmentRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessment_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.DealID, run.CycleDate, run.Strategy, run.Tier,
		run.CostEstimate, run.ProbabilityEstimate, run.GradeOutput, run.ErrorNote, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) LastSuccessful(ctx context.Context, dealID string) (*models.AssessmentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM assessment_runs
		 WHERE deal_id = $1 AND error_note = ''
		 ORDER BY created_at DESC LIMIT 1`, dealID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("query last successful run: %w", err)
	}
	return run, nil
}

func (s *PostgresRunStore) ListByDeal(ctx context.Context, dealID string, limit int) ([]models.AssessmentRun, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM assessment_runs
		 WHERE deal_id = $1 ORDER BY created_at DESC LIMIT $2`, dealID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.AssessmentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.AssessmentRun, error) {
	var run models.AssessmentRun
	err := row.Scan(&run.ID, &run.DealID, &run.CycleDate, &run.Strategy, &run.Tier,
		&run.CostEstimate, &run.ProbabilityEstimate, &run.GradeOutput, &run.ErrorNote, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
