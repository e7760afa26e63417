package resolution

import (
	"errors"
	"fmt"

	ingestion "farmgate/internal/ingestion/domain"
	registry "farmgate/internal/registry/domain"
)

// Registry is the read-only snapshot view the resolver works against.
type Registry interface {
	LookupDevice(id string) (registry.Device, bool)
	ActivePlots() []registry.Plot
}

// Result is a successful plot assignment.
type Result struct {
	TalhaoID string
	Method   ingestion.ResolutionMethod
}

// Resolver assigns validated readings to plots. Phase one is the
// authoritative device-registry lookup; phase two falls back to
// point-in-polygon matching over the active bounded plots.
type Resolver struct {
	registry Registry
}

// NewResolver constructs a resolver over a registry snapshot view.
func NewResolver(reg Registry) (*Resolver, error) {
	if reg == nil {
		return nil, errors.New("resolver: nil registry")
	}
	return &Resolver{registry: reg}, nil
}

// Resolve maps a device id and coordinate onto a plot.
//
// An active registered device always wins, regardless of where the point
// falls. Otherwise the point is tested against every active bounded plot;
// when several boundaries overlap at the point, the smallest-area boundary
// wins, with exact-area ties broken on the smallest plot id so resolution
// is deterministic.
func (r *Resolver) Resolve(deviceID string, point ingestion.GeoPoint) (Result, *ingestion.PipelineError) {
	if device, ok := r.registry.LookupDevice(deviceID); ok && device.Active {
		return Result{TalhaoID: device.TalhaoID, Method: ingestion.ResolvedByDevice}, nil
	}

	candidates := r.registry.ActivePlots()
	if len(candidates) == 0 {
		return Result{}, &ingestion.PipelineError{
			Type:    ingestion.ErrorTypeResolution,
			Code:    ingestion.CodeDeviceNotFound,
			Message: fmt.Sprintf("device %q is not registered and no active plot boundary is available for fallback", deviceID),
		}
	}

	var (
		bestID   string
		bestArea float64
		found    bool
	)
	for _, plot := range candidates {
		geom, err := ParseGeometry(plot.Boundary)
		if err != nil {
			return Result{}, &ingestion.PipelineError{
				Type:    ingestion.ErrorTypeGeoFallback,
				Code:    ingestion.CodeGeoJSONNotMatch,
				Message: fmt.Sprintf("plot %q boundary is malformed: %v", plot.ID, err),
			}
		}
		if !geom.Contains(point.Lat, point.Lon) {
			continue
		}
		area := geom.Area()
		if !found || area < bestArea || (area == bestArea && plot.ID < bestID) {
			bestID = plot.ID
			bestArea = area
			found = true
		}
	}

	if !found {
		return Result{}, &ingestion.PipelineError{
			Type:    ingestion.ErrorTypeResolution,
			Code:    ingestion.CodeTalhaoNotFound,
			Message: fmt.Sprintf("no active plot contains point (%v, %v)", point.Lat, point.Lon),
		}
	}
	return Result{TalhaoID: bestID, Method: ingestion.ResolvedByGeo}, nil
}
