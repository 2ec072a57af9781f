package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	"DealWatch/pkg/clickhouse"
)

// AuditDDL lists the idempotent ClickHouse statements for the append-only
// history tables. Rows here are never updated or deleted in band; retention
// is a TTL concern for operators.
func AuditDDL(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.fingerprint_history (
			deal_id     String,
			cycle_date  Date,
			hash        String,
			fields_json String,
			inserted_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (deal_id, cycle_date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.verdict_history (
			deal_id      String,
			cycle_date   Date,
			magnitude    LowCardinality(String),
			changed_json String,
			inserted_at  DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (deal_id, cycle_date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.run_history (
			run_id        String,
			deal_id       String,
			cycle_date    Date,
			strategy      LowCardinality(String),
			tier          LowCardinality(String),
			cost_estimate Float64,
			probability   Float64,
			grade_output  String,
			error_note    String,
			created_at    DateTime
		) ENGINE = MergeTree()
		ORDER BY (deal_id, cycle_date)`, database),
	}
}

// ClickHouseAuditSink appends fingerprint, verdict, and run history.
type ClickHouseAuditSink struct {
	client   *clickhouse.Client
	database string
}

func NewClickHouseAuditSink(client *clickhouse.Client, database string) *ClickHouseAuditSink {
	return &ClickHouseAuditSink{client: client, database: database}
}

var _ domrepo.AuditSink = (*ClickHouseAuditSink)(nil)

func (s *ClickHouseAuditSink) AppendFingerprint(ctx context.Context, fp *models.ContextFingerprint) error {
	fields, err := json.Marshal(fp.BucketedFields)
	if err != nil {
		return fmt.Errorf("encode fingerprint fields: %w", err)
	}
	_, err = s.client.DB().ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s.fingerprint_history (deal_id, cycle_date, hash, fields_json) VALUES (?, ?, ?, ?)`, s.database),
		fp.DealID, fp.CycleDate, fp.Hash, string(fields))
	if err != nil {
		return fmt.Errorf("append fingerprint history: %w", err)
	}
	return nil
}

func (s *ClickHouseAuditSink) AppendVerdict(ctx context.Context, v *models.ChangeVerdict) error {
	changed, err := json.Marshal(v.ChangedFields)
	if err != nil {
		return fmt.Errorf("encode changed fields: %w", err)
	}
	_, err = s.client.DB().ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s.verdict_history (deal_id, cycle_date, magnitude, changed_json) VALUES (?, ?, ?, ?)`, s.database),
		v.DealID, v.CycleDate, string(v.Magnitude), string(changed))
	if err != nil {
		return fmt.Errorf("append verdict history: %w", err)
	}
	return nil
}

func (s *ClickHouseAuditSink) AppendRun(ctx context.Context, run *models.AssessmentRun) error {
	_, err := s.client.DB().ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s.run_history
		 (run_id, deal_id, cycle_date, strategy, tier, cost_estimate, probability, grade_output, error_note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database),
		run.ID.String(), run.DealID, run.CycleDate, string(run.Strategy), string(run.Tier),
		run.CostEstimate, run.ProbabilityEstimate, run.GradeOutput, run.ErrorNote,
		run.CreatedAt.Format(time.DateTime))
	if err != nil {
		return fmt.Errorf("append run history: %w", err)
	}
	return nil
}

// NoopAuditSink is used when no ClickHouse host is configured.
type NoopAuditSink struct{}

func (NoopAuditSink) AppendFingerprint(context.Context, *models.ContextFingerprint) error {
	return nil
}
func (NoopAuditSink) AppendVerdict(context.Context, *models.ChangeVerdict) error { return nil }
func (NoopAuditSink) AppendRun(context.Context, *models.AssessmentRun) error     { return nil }
