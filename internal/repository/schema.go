package repository

// Schema lists the idempotent PostgreSQL DDL for the mutable state tables.
// Append-only history lives in ClickHouse, not here.
func Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS deals (
			deal_id TEXT PRIMARY KEY,
			active  BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS deal_contexts (
			deal_id       TEXT NOT NULL,
			cycle_date    TEXT NOT NULL,
			categorical   JSONB NOT NULL,
			spreads       JSONB NOT NULL,
			probabilities JSONB NOT NULL,
			PRIMARY KEY (deal_id, cycle_date)
		)`,
		`CREATE TABLE IF NOT EXISTS deal_fingerprints (
			deal_id    TEXT PRIMARY KEY,
			cycle_date TEXT NOT NULL,
			hash       TEXT NOT NULL,
			fields     JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS assessment_runs (
			id            UUID PRIMARY KEY,
			deal_id       TEXT NOT NULL,
			cycle_date    TEXT NOT NULL,
			strategy      TEXT NOT NULL,
			tier          TEXT NOT NULL,
			cost_estimate DOUBLE PRECISION NOT NULL,
			probability   DOUBLE PRECISION NOT NULL,
			grade_output  TEXT NOT NULL,
			error_note    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_deal_created ON assessment_runs (deal_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id                  UUID PRIMARY KEY,
			run_id              UUID NOT NULL,
			deal_id             TEXT NOT NULL,
			created_cycle_date  TEXT NOT NULL,
			type                TEXT NOT NULL,
			risk_factor         TEXT NOT NULL,
			signal              TEXT NOT NULL,
			stated_probability  DOUBLE PRECISION NOT NULL,
			resolution_deadline TIMESTAMPTZ NOT NULL,
			condition_kind      TEXT NOT NULL,
			condition_target    TEXT NOT NULL,
			status              TEXT NOT NULL,
			actual_outcome      INT,
			brier_score         DOUBLE PRECISION,
			resolved_at         TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_pending ON predictions (status, resolution_deadline)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_condition ON predictions (deal_id, condition_kind, condition_target)`,
		`CREATE TABLE IF NOT EXISTS calibration_buckets (
			range_low        DOUBLE PRECISION NOT NULL,
			range_high       DOUBLE PRECISION NOT NULL,
			risk_factor      TEXT NOT NULL,
			sample_count     INT NOT NULL,
			mean_stated      DOUBLE PRECISION NOT NULL,
			empirical_rate   DOUBLE PRECISION NOT NULL,
			mean_brier       DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (range_low, range_high, risk_factor)
		)`,
		`CREATE TABLE IF NOT EXISTS calibration_reports (
			singleton   BOOLEAN PRIMARY KEY DEFAULT TRUE,
			computed_at TIMESTAMPTZ NOT NULL,
			summary     TEXT NOT NULL,
			flags       JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signal_weights (
			signal           TEXT PRIMARY KEY,
			historical_brier DOUBLE PRECISION NOT NULL,
			weight           DOUBLE PRECISION NOT NULL,
			sample_count     INT NOT NULL,
			activated        BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS review_queue (
			id             UUID PRIMARY KEY,
			deal_id        TEXT NOT NULL,
			cycle_date     TEXT NOT NULL,
			priority_score INT NOT NULL,
			triggers       JSONB NOT NULL,
			status         TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_review_open ON review_queue (deal_id) WHERE status = 'OPEN'`,
		`CREATE TABLE IF NOT EXISTS human_corrections (
			deal_id         TEXT NOT NULL,
			cycle_date      TEXT NOT NULL,
			corrected_grade TEXT NOT NULL,
			correct_signal  TEXT NOT NULL,
			error_type      TEXT NOT NULL,
			submitted_at    TIMESTAMPTZ NOT NULL
		)`,
	}
}
