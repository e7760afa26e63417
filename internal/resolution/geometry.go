package resolution

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Geometry is a parsed plot boundary: one or more polygons, each an outer
// ring optionally followed by holes. Coordinates follow the GeoJSON
// convention of [lon, lat] positions.
type Geometry struct {
	polygons []polygon
}

type polygon struct {
	outer ring
	holes []ring
}

type ring []position

type position struct {
	lon float64
	lat float64
}

var errEmptyGeometry = errors.New("geometry: empty")

// ParseGeometry parses a GeoJSON Polygon or MultiPolygon geometry object.
// Anything else, including rings with fewer than four positions, is
// malformed.
func ParseGeometry(data []byte) (*Geometry, error) {
	if len(data) == 0 {
		return nil, errEmptyGeometry
	}

	var raw struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}

	switch raw.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(raw.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("geometry: polygon coordinates: %w", err)
		}
		poly, err := buildPolygon(rings)
		if err != nil {
			return nil, err
		}
		return &Geometry{polygons: []polygon{poly}}, nil
	case "MultiPolygon":
		var parts [][][][]float64
		if err := json.Unmarshal(raw.Coordinates, &parts); err != nil {
			return nil, fmt.Errorf("geometry: multipolygon coordinates: %w", err)
		}
		if len(parts) == 0 {
			return nil, errors.New("geometry: multipolygon without polygons")
		}
		polygons := make([]polygon, 0, len(parts))
		for _, rings := range parts {
			poly, err := buildPolygon(rings)
			if err != nil {
				return nil, err
			}
			polygons = append(polygons, poly)
		}
		return &Geometry{polygons: polygons}, nil
	default:
		return nil, fmt.Errorf("geometry: unsupported type %q", raw.Type)
	}
}

func buildPolygon(rings [][][]float64) (polygon, error) {
	if len(rings) == 0 {
		return polygon{}, errors.New("geometry: polygon without rings")
	}
	built := make([]ring, 0, len(rings))
	for _, coords := range rings {
		r, err := buildRing(coords)
		if err != nil {
			return polygon{}, err
		}
		built = append(built, r)
	}
	return polygon{outer: built[0], holes: built[1:]}, nil
}

func buildRing(coords [][]float64) (ring, error) {
	if len(coords) < 4 {
		return nil, fmt.Errorf("geometry: ring with %d positions", len(coords))
	}
	r := make(ring, 0, len(coords))
	for _, pos := range coords {
		if len(pos) < 2 {
			return nil, errors.New("geometry: position with fewer than two coordinates")
		}
		r = append(r, position{lon: pos[0], lat: pos[1]})
	}
	// GeoJSON rings repeat the first position; drop the duplicate so the
	// containment and area loops can close implicitly.
	if first, last := r[0], r[len(r)-1]; first == last {
		r = r[:len(r)-1]
	}
	if len(r) < 3 {
		return nil, errors.New("geometry: degenerate ring")
	}
	return r, nil
}

// Contains reports whether the point is inside the geometry. Multipolygons
// match as the union of their parts; a point inside a hole does not match.
func (g *Geometry) Contains(lat, lon float64) bool {
	if g == nil {
		return false
	}
	pt := position{lon: lon, lat: lat}
	for _, poly := range g.polygons {
		if !poly.outer.contains(pt) {
			continue
		}
		inHole := false
		for _, hole := range poly.holes {
			if hole.contains(pt) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// contains runs a ray cast along constant latitude.
func (r ring) contains(pt position) bool {
	inside := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := r[i], r[j]
		if (a.lat > pt.lat) != (b.lat > pt.lat) {
			crossLon := (b.lon-a.lon)*(pt.lat-a.lat)/(b.lat-a.lat) + a.lon
			if pt.lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// Area returns the planar shoelace area in squared degrees: outer rings
// minus holes, summed over parts. It is only ever compared against other
// boundaries for the overlap tie-break, so the unit does not matter.
func (g *Geometry) Area() float64 {
	if g == nil {
		return 0
	}
	var total float64
	for _, poly := range g.polygons {
		area := poly.outer.area()
		for _, hole := range poly.holes {
			area -= hole.area()
		}
		if area > 0 {
			total += area
		}
	}
	return total
}

func (r ring) area() float64 {
	var sum float64
	n := len(r)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += r[i].lon*r[j].lat - r[j].lon*r[i].lat
	}
	return math.Abs(sum) / 2
}
