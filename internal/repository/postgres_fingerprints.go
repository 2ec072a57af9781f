package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
)

// PostgresFingerprintStore keeps only the latest fingerprint per deal. The
// full per-cycle history is the audit sink's job.
type PostgresFingerprintStore struct {
	db *sql.DB
}

func NewPostgresFingerprintStore(db *sql.DB) *PostgresFingerprintStore {
	return &PostgresFingerprintStore{db: db}
}

var _ domrepo.FingerprintStore = (*PostgresFingerprintStore)(nil)

func (s *PostgresFingerprintStore) Latest(ctx context.Context, dealID string) (*models.ContextFingerprint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT deal_id, cycle_date, hash, fields FROM deal_fingerprints WHERE deal_id = $1`, dealID)

	var fp models.ContextFingerprint
	var fields []byte
	if err := row.Scan(&fp.DealID, &fp.CycleDate, &fp.Hash, &fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("query fingerprint: %w", err)
	}
	if err := json.Unmarshal(fields, &fp.BucketedFields); err != nil {
		return nil, fmt.Errorf("decode fingerprint fields: %w", err)
	}
	return &fp, nil
}

func (s *PostgresFingerprintStore) Save(ctx context.Context, fp *models.ContextFingerprint) error {
	fields, err := json.Marshal(fp.BucketedFields)
	if err != nil {
		return fmt.Errorf("encode fingerprint fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deal_fingerprints (deal_id, cycle_date, hash, fields)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (deal_id) DO UPDATE SET cycle_date = $2, hash = $3, fields = $4`,
		fp.DealID, fp.CycleDate, fp.Hash, fields)
	if err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}
	return nil
}
