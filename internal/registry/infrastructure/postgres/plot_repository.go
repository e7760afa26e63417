package postgres

import (
	"context"
	"errors"
	"fmt"

	registry "farmgate/internal/registry/domain"
)

const defaultPlotsTable = "talhoes"

// PlotRepository is a Postgres implementation of the plot source. Boundaries
// are stored as GeoJSON in a jsonb column and loaded verbatim; parsing is
// the resolver's concern.
type PlotRepository struct {
	db    DBTX
	table string
}

// NewPlotRepository constructs a repository.
func NewPlotRepository(db DBTX, opts ...PlotOption) *PlotRepository {
	repo := &PlotRepository{db: db, table: defaultPlotsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// PlotOption configures the repository.
type PlotOption func(*PlotRepository)

// WithPlotTable overrides the default table name.
func WithPlotTable(table string) PlotOption {
	return func(repo *PlotRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// ListPlots loads the full plot registry.
func (r *PlotRepository) ListPlots(ctx context.Context) ([]registry.Plot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("plot repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, active, boundary, updated_at
FROM %s
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.Plot
	for rows.Next() {
		var plot registry.Plot
		if err := rows.Scan(
			&plot.ID,
			&plot.Active,
			&plot.Boundary,
			&plot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		plot.UpdatedAt = plot.UpdatedAt.UTC()
		result = append(result, plot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
