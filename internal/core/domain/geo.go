package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BBoxPad absorbs rounding introduced when a viewport is serialized.
const BBoxPad = 1e-6

// LatLng is a WGS 84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is finite and inside the WGS 84 range.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Point returns the orb representation, which is (lng, lat).
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Bounds is a viewport rectangle in degrees.
// West > East (antimeridian crossing) is not supported.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// ParseBounds parses "west,south,east,north". A malformed value yields
// ok == false and callers treat it as "no bbox filter".
func ParseBounds(s string) (Bounds, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Bounds{}, false
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, false
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Bounds{}, false
		}
		v[i] = f
	}
	return Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}, true
}

// Bound converts to an orb.Bound padded by BBoxPad on every edge.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}.Pad(BBoxPad)
}

// Contains is the inclusive, padded containment test used by the query filter.
func (b Bounds) Contains(p LatLng) bool {
	return b.Bound().Contains(p.Point())
}

// String renders the bounds back into the query-string form.
func (b Bounds) String() string {
	return strconv.FormatFloat(b.West, 'f', -1, 64) + "," +
		strconv.FormatFloat(b.South, 'f', -1, 64) + "," +
		strconv.FormatFloat(b.East, 'f', -1, 64) + "," +
		strconv.FormatFloat(b.North, 'f', -1, 64)
}
