package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
)

// PostgresReviewStore maintains the review queue. One open item per deal is
// enforced by a partial unique index; upserts replace the score and triggers
// rather than accumulating them.
type PostgresReviewStore struct {
	db *sql.DB
}

func NewPostgresReviewStore(db *sql.DB) *PostgresReviewStore {
	return &PostgresReviewStore{db: db}
}

var _ domrepo.ReviewStore = (*PostgresReviewStore)(nil)

func (s *PostgresReviewStore) UpsertOpen(ctx context.Context, item *models.ReviewQueueItem) error {
	triggers, err := json.Marshal(item.Triggers)
	if err != nil {
		return fmt.Errorf("encode triggers: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_queue
		 SET cycle_date = $1, priority_score = $2, triggers = $3, updated_at = $4
		 WHERE deal_id = $5 AND status = $6`,
		item.CycleDate, item.PriorityScore, triggers, item.UpdatedAt,
		item.DealID, models.ReviewOpen)
	if err != nil {
		return fmt.Errorf("update review item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_queue (id, deal_id, cycle_date, priority_score, triggers, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.DealID, item.CycleDate, item.PriorityScore, triggers,
		models.ReviewOpen, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert review item: %w", err)
	}
	return nil
}

func (s *PostgresReviewStore) ListOpen(ctx context.Context, limit int) ([]models.ReviewQueueItem, error) {
	q := `SELECT id, deal_id, cycle_date, priority_score, triggers, status, created_at, updated_at
	      FROM review_queue WHERE status = $1 ORDER BY priority_score DESC, updated_at ASC`
	args := []any{models.ReviewOpen}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query review queue: %w", err)
	}
	defer rows.Close()

	var out []models.ReviewQueueItem
	for rows.Next() {
		var item models.ReviewQueueItem
		var triggers []byte
		if err := rows.Scan(&item.ID, &item.DealID, &item.CycleDate, &item.PriorityScore,
			&triggers, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		if err := json.Unmarshal(triggers, &item.Triggers); err != nil {
			return nil, fmt.Errorf("decode triggers: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresReviewStore) CloseWithCorrection(ctx context.Context, corr *models.HumanCorrection) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin close: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE review_queue SET status = $1, updated_at = $2
		 WHERE deal_id = $3 AND status = $4`,
		models.ReviewResolvedByHuman, corr.SubmittedAt, corr.DealID, models.ReviewOpen)
	if err != nil {
		return false, fmt.Errorf("close review item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO human_corrections (deal_id, cycle_date, corrected_grade, correct_signal, error_type, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		corr.DealID, corr.CycleDate, corr.CorrectedGrade, corr.CorrectSignal, corr.ErrorType, corr.SubmittedAt)
	if err != nil {
		return false, fmt.Errorf("record correction: %w", err)
	}
	return true, tx.Commit()
}

func (s *PostgresReviewStore) ListCorrectionsSince(ctx context.Context, since time.Time) ([]models.HumanCorrection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT deal_id, cycle_date, corrected_grade, correct_signal, error_type, submitted_at
		 FROM human_corrections WHERE submitted_at >= $1 ORDER BY submitted_at`, since)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []models.HumanCorrection
	for rows.Next() {
		var c models.HumanCorrection
		if err := rows.Scan(&c.DealID, &c.CycleDate, &c.CorrectedGrade, &c.CorrectSignal, &c.ErrorType, &c.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
