package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seuros/scalex/internal/filters"
)

// DefaultScope is the row used by a single-tenant dashboard.
const DefaultScope = "default"

// FilterRepository persists filters.State in the filter_state table.
// It satisfies filters.Persister.
type FilterRepository struct {
	db    *sql.DB
	scope string
}

// NewFilterRepository binds the repository to one scope row.
func NewFilterRepository(db *sql.DB, scope string) *FilterRepository {
	if scope == "" {
		scope = DefaultScope
	}
	return &FilterRepository{db: db, scope: scope}
}

func (r *FilterRepository) Load(ctx context.Context) (filters.State, bool, error) {
	var (
		start, end sql.NullTime
		comparison bool
		segments   []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT date_start, date_end, comparison_enabled, segment_filters
		FROM filter_state
		WHERE scope = $1`, r.scope).Scan(&start, &end, &comparison, &segments)
	if errors.Is(err, sql.ErrNoRows) {
		return filters.State{}, false, nil
	}
	if err != nil {
		return filters.State{}, false, fmt.Errorf("failed to load filter state: %w", err)
	}

	state := filters.State{ComparisonEnabled: comparison}
	if start.Valid && end.Valid {
		state.DateRange = &filters.DateRange{
			Start: start.Time.Format(filters.DateLayout),
			End:   end.Time.Format(filters.DateLayout),
		}
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &state.SegmentFilters); err != nil {
			return filters.State{}, false, fmt.Errorf("failed to decode segment filters: %w", err)
		}
	}
	return state, true, nil
}

func (r *FilterRepository) Save(ctx context.Context, state filters.State) error {
	var start, end sql.NullTime
	if state.DateRange != nil {
		s, err := time.Parse(filters.DateLayout, state.DateRange.Start)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		e, err := time.Parse(filters.DateLayout, state.DateRange.End)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		start = sql.NullTime{Time: s, Valid: true}
		end = sql.NullTime{Time: e, Valid: true}
	}

	segments := state.SegmentFilters
	if segments == nil {
		segments = map[string]*string{}
	}
	encoded, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("failed to encode segment filters: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO filter_state (scope, date_start, date_end, comparison_enabled, segment_filters, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (scope) DO UPDATE SET
			date_start = EXCLUDED.date_start,
			date_end = EXCLUDED.date_end,
			comparison_enabled = EXCLUDED.comparison_enabled,
			segment_filters = EXCLUDED.segment_filters,
			updated_at = NOW()`,
		r.scope, start, end, state.ComparisonEnabled, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to save filter state: %w", err)
	}
	return nil
}
