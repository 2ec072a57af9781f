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

// PostgresContextProvider reads each deal's material facts from the tables
// the upstream market-data ingester maintains. DealWatch only reads here.
type PostgresContextProvider struct {
	db *sql.DB
}

func NewPostgresContextProvider(db *sql.DB) *PostgresContextProvider {
	return &PostgresContextProvider{db: db}
}

var _ domrepo.ContextProvider = (*PostgresContextProvider)(nil)

func (p *PostgresContextProvider) ActiveDeals(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT deal_id FROM deals WHERE active ORDER BY deal_id`)
	if err != nil {
		return nil, fmt.Errorf("query active deals: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *PostgresContextProvider) Fetch(ctx context.Context, dealID, cycleDate string) (*models.MaterialContext, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT categorical, spreads, probabilities FROM deal_contexts
		 WHERE deal_id = $1 AND cycle_date = $2`, dealID, cycleDate)

	var categorical, spreads, probabilities []byte
	if err := row.Scan(&categorical, &spreads, &probabilities); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("query deal context: %w", err)
	}

	mc := &models.MaterialContext{DealID: dealID, CycleDate: cycleDate}
	if err := json.Unmarshal(categorical, &mc.Categorical); err != nil {
		return nil, fmt.Errorf("decode categorical fields: %w", err)
	}
	if err := json.Unmarshal(spreads, &mc.Spreads); err != nil {
		return nil, fmt.Errorf("decode spreads: %w", err)
	}
	if err := json.Unmarshal(probabilities, &mc.Probabilities); err != nil {
		return nil, fmt.Errorf("decode probabilities: %w", err)
	}
	return mc, nil
}
