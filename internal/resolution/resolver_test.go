package resolution

import (
	"encoding/json"
	"testing"

	ingestion "farmgate/internal/ingestion/domain"
	registry "farmgate/internal/registry/domain"
)

type stubRegistry struct {
	devices map[string]registry.Device
	plots   []registry.Plot
}

func (s stubRegistry) LookupDevice(id string) (registry.Device, bool) {
	device, ok := s.devices[id]
	return device, ok
}

func (s stubRegistry) ActivePlots() []registry.Plot {
	return s.plots
}

func boundary(geojson string) json.RawMessage {
	return json.RawMessage(geojson)
}

// polygonAround builds a square of the given half-size centered on the point.
func polygonAround(lat, lon, half float64) json.RawMessage {
	type pos = [2]float64
	ring := []pos{
		{lon - half, lat - half},
		{lon + half, lat - half},
		{lon + half, lat + half},
		{lon - half, lat + half},
		{lon - half, lat - half},
	}
	data, _ := json.Marshal(map[string]any{"type": "Polygon", "coordinates": []any{ring}})
	return data
}

func TestResolveDevicePathWins(t *testing.T) {
	reg := stubRegistry{
		devices: map[string]registry.Device{
			"dev-2": {ID: "dev-2", TalhaoID: "T2", Active: true},
		},
		// Geo would match a different plot; the registry must win anyway.
		plots: []registry.Plot{{ID: "T9", Active: true, Boundary: polygonAround(-12, -50, 1)}},
	}
	resolver, err := NewResolver(reg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	result, perr := resolver.Resolve("dev-2", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if result.TalhaoID != "T2" || result.Method != ingestion.ResolvedByDevice {
		t.Fatalf("expected T2/device, got %+v", result)
	}
}

func TestResolveGeoFallback(t *testing.T) {
	reg := stubRegistry{
		plots: []registry.Plot{
			{ID: "T1", Active: true, Boundary: polygonAround(-12, -50, 1)},
			{ID: "T8", Active: true, Boundary: polygonAround(30, 30, 1)},
		},
	}
	resolver, _ := NewResolver(reg)

	result, perr := resolver.Resolve("dev-1", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if result.TalhaoID != "T1" || result.Method != ingestion.ResolvedByGeo {
		t.Fatalf("expected T1/geo, got %+v", result)
	}
}

func TestResolveInactiveDeviceFallsBack(t *testing.T) {
	reg := stubRegistry{
		devices: map[string]registry.Device{
			"dev-3": {ID: "dev-3", TalhaoID: "T3", Active: false},
		},
		plots: []registry.Plot{{ID: "T1", Active: true, Boundary: polygonAround(-12, -50, 1)}},
	}
	resolver, _ := NewResolver(reg)

	result, perr := resolver.Resolve("dev-3", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if result.TalhaoID != "T1" || result.Method != ingestion.ResolvedByGeo {
		t.Fatalf("expected fallback to T1/geo, got %+v", result)
	}
}

func TestResolveOverlapPicksSmallestArea(t *testing.T) {
	reg := stubRegistry{
		plots: []registry.Plot{
			{ID: "T-big", Active: true, Boundary: polygonAround(-12, -50, 5)},
			{ID: "T-small", Active: true, Boundary: polygonAround(-12, -50, 0.5)},
			{ID: "T-mid", Active: true, Boundary: polygonAround(-12, -50, 2)},
		},
	}
	resolver, _ := NewResolver(reg)

	result, perr := resolver.Resolve("dev-x", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if result.TalhaoID != "T-small" {
		t.Fatalf("expected smallest containing plot, got %s", result.TalhaoID)
	}
}

func TestResolveEqualAreaTieBreaksOnID(t *testing.T) {
	reg := stubRegistry{
		plots: []registry.Plot{
			{ID: "T-b", Active: true, Boundary: polygonAround(-12, -50, 1)},
			{ID: "T-a", Active: true, Boundary: polygonAround(-12, -50, 1)},
		},
	}
	resolver, _ := NewResolver(reg)

	result, perr := resolver.Resolve("dev-x", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if result.TalhaoID != "T-a" {
		t.Fatalf("expected deterministic id tie-break, got %s", result.TalhaoID)
	}
}

func TestResolveNoContainingPlot(t *testing.T) {
	reg := stubRegistry{
		plots: []registry.Plot{{ID: "T1", Active: true, Boundary: polygonAround(30, 30, 1)}},
	}
	resolver, _ := NewResolver(reg)

	_, perr := resolver.Resolve("dev-1", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr == nil {
		t.Fatal("expected resolution failure")
	}
	if perr.Type != ingestion.ErrorTypeResolution || perr.Code != ingestion.CodeTalhaoNotFound {
		t.Fatalf("expected ResolutionError/TALHAO_NOT_FOUND, got %s/%s", perr.Type, perr.Code)
	}
}

func TestResolveNoCandidatesAtAll(t *testing.T) {
	resolver, _ := NewResolver(stubRegistry{})

	_, perr := resolver.Resolve("dev-unknown", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr == nil {
		t.Fatal("expected resolution failure")
	}
	if perr.Type != ingestion.ErrorTypeResolution || perr.Code != ingestion.CodeDeviceNotFound {
		t.Fatalf("expected ResolutionError/DEVICE_NOT_FOUND, got %s/%s", perr.Type, perr.Code)
	}
}

func TestResolveMalformedBoundaryAbortsFallback(t *testing.T) {
	reg := stubRegistry{
		plots: []registry.Plot{
			{ID: "T-broken", Active: true, Boundary: boundary(`{"type":"Polygon"}`)},
			{ID: "T-ok", Active: true, Boundary: polygonAround(-12, -50, 1)},
		},
	}
	resolver, _ := NewResolver(reg)

	_, perr := resolver.Resolve("dev-1", ingestion.GeoPoint{Lat: -12, Lon: -50})
	if perr == nil {
		t.Fatal("expected geo fallback failure")
	}
	if perr.Type != ingestion.ErrorTypeGeoFallback || perr.Code != ingestion.CodeGeoJSONNotMatch {
		t.Fatalf("expected GeoFallbackError/GEOJSON_NOT_MATCH, got %s/%s", perr.Type, perr.Code)
	}
}
