package registry

import (
	"context"
	"encoding/json"
	"time"
)

// Plot (talhao) is a delineated agricultural field. Boundary is the raw
// GeoJSON geometry as stored by the owning service, nil when the plot has
// none; it is parsed at match time so malformed master data surfaces as a
// resolution failure, not a refresh failure.
type Plot struct {
	ID        string
	Active    bool
	Boundary  json.RawMessage
	UpdatedAt time.Time
}

// Bounded returns true when the plot carries a boundary geometry.
func (p Plot) Bounded() bool {
	return len(p.Boundary) > 0
}

// PlotSource loads the full plot set for a snapshot refresh.
type PlotSource interface {
	ListPlots(ctx context.Context) ([]Plot, error)
}
