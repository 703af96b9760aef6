package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/seuros/scalex/internal/kpi"
)

// MetricRepository reads and writes the kpi_aggregate rows. It satisfies kpi.Source.
type MetricRepository struct {
	db *sql.DB
}

// NewMetricRepository wraps db.
func NewMetricRepository(db *sql.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Metrics loads every row.
func (r *MetricRepository) Metrics(ctx context.Context) (kpi.Metrics, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT metric_name, metric_value, metric_value_string
		FROM kpi_aggregate`)
	if err != nil {
		return nil, fmt.Errorf("failed to query kpi metrics: %w", err)
	}
	defer rows.Close()

	var out []kpi.Metric
	for rows.Next() {
		var (
			name  string
			value sql.NullFloat64
			text  sql.NullString
		)
		if err := rows.Scan(&name, &value, &text); err != nil {
			return nil, fmt.Errorf("failed to scan kpi metric: %w", err)
		}
		m := kpi.Metric{Name: name}
		if value.Valid {
			m.Value = &value.Float64
		}
		if text.Valid {
			m.Text = &text.String
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read kpi metrics: %w", err)
	}
	return kpi.FromRows(out), nil
}

// Put upserts rows in one transaction.
func (r *MetricRepository) Put(ctx context.Context, metrics []kpi.Metric) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range metrics {
		var (
			value sql.NullFloat64
			text  sql.NullString
		)
		if m.Value != nil {
			value = sql.NullFloat64{Float64: *m.Value, Valid: true}
		}
		if m.Text != nil {
			text = sql.NullString{String: *m.Text, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kpi_aggregate (metric_name, metric_value, metric_value_string, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (metric_name) DO UPDATE SET
				metric_value = EXCLUDED.metric_value,
				metric_value_string = EXCLUDED.metric_value_string,
				updated_at = NOW()`,
			m.Name, value, text)
		if err != nil {
			return fmt.Errorf("failed to save metric %s: %w", m.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics: %w", err)
	}
	return nil
}
