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

// PostgresCalibrationStore swaps the whole report inside one transaction so
// readers never observe a half-replaced bucket table.
type PostgresCalibrationStore struct {
	db *sql.DB
}

func NewPostgresCalibrationStore(db *sql.DB) *PostgresCalibrationStore {
	return &PostgresCalibrationStore{db: db}
}

var _ domrepo.CalibrationStore = (*PostgresCalibrationStore)(nil)

func (s *PostgresCalibrationStore) Replace(ctx context.Context, report *models.CalibrationReport) error {
	flags, err := json.Marshal(report.Flags)
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin calibration replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM calibration_buckets`); err != nil {
		return fmt.Errorf("clear buckets: %w", err)
	}
	for _, b := range report.Buckets {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO calibration_buckets
			 (range_low, range_high, risk_factor, sample_count, mean_stated, empirical_rate, mean_brier)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.RangeLow, b.RangeHigh, b.RiskFactor, b.SampleCount,
			b.MeanStatedProbability, b.EmpiricalResolutionRate, b.MeanBrier)
		if err != nil {
			return fmt.Errorf("insert bucket: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO calibration_reports (singleton, computed_at, summary, flags)
		 VALUES (TRUE, $1, $2, $3)
		 ON CONFLICT (singleton) DO UPDATE SET computed_at = $1, summary = $2, flags = $3`,
		report.ComputedAt, report.Summary, flags)
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresCalibrationStore) Current(ctx context.Context) (*models.CalibrationReport, error) {
	var report models.CalibrationReport
	var flags []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT computed_at, summary, flags FROM calibration_reports WHERE singleton`).
		Scan(&report.ComputedAt, &report.Summary, &flags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	if err := json.Unmarshal(flags, &report.Flags); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT range_low, range_high, risk_factor, sample_count, mean_stated, empirical_rate, mean_brier
		 FROM calibration_buckets ORDER BY range_low, risk_factor`)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b models.CalibrationBucket
		if err := rows.Scan(&b.RangeLow, &b.RangeHigh, &b.RiskFactor, &b.SampleCount,
			&b.MeanStatedProbability, &b.EmpiricalResolutionRate, &b.MeanBrier); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		report.Buckets = append(report.Buckets, b)
	}
	return &report, rows.Err()
}

// PostgresSignalWeightStore replaces the weight table whole, same contract
// as the calibration store.
type PostgresSignalWeightStore struct {
	db *sql.DB
}

func NewPostgresSignalWeightStore(db *sql.DB) *PostgresSignalWeightStore {
	return &PostgresSignalWeightStore{db: db}
}

var _ domrepo.SignalWeightStore = (*PostgresSignalWeightStore)(nil)

func (s *PostgresSignalWeightStore) Replace(ctx context.Context, weights []models.SignalWeight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin weights replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM signal_weights`); err != nil {
		return fmt.Errorf("clear weights: %w", err)
	}
	for _, w := range weights {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO signal_weights (signal, historical_brier, weight, sample_count, activated)
			 VALUES ($1, $2, $3, $4, $5)`,
			w.Signal, w.HistoricalBrier, w.Weight, w.SampleCount, w.Activated)
		if err != nil {
			return fmt.Errorf("insert weight: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresSignalWeightStore) Current(ctx context.Context) ([]models.SignalWeight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signal, historical_brier, weight, sample_count, activated
		 FROM signal_weights ORDER BY signal`)
	if err != nil {
		return nil, fmt.Errorf("query weights: %w", err)
	}
	defer rows.Close()

	var out []models.SignalWeight
	for rows.Next() {
		var w models.SignalWeight
		if err := rows.Scan(&w.Signal, &w.HistoricalBrier, &w.Weight, &w.SampleCount, &w.Activated); err != nil {
			return nil, fmt.Errorf("scan weight: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
