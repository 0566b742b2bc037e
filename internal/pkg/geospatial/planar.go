package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// SegmentDistance returns the distance in meters from p to the segment a-b.
// Coordinates are (lng, lat). The segment is projected equirectangularly
// around its own mean latitude, which is accurate at city scale.
func SegmentDistance(p, a, b orb.Point) float64 {
	meanLat := (a[1] + b[1]) / 2
	kx := math.Cos(toRad(meanLat)) * toRad(1) * EarthRadiusMeters
	ky := toRad(1) * EarthRadiusMeters
	origin := a[0]

	project := func(q orb.Point) orb.Point {
		return orb.Point{(q[0] - origin) * kx, q[1] * ky}
	}
	return planar.DistanceFromSegment(project(a), project(b), project(p))
}

// PolylineDistance returns the minimum SegmentDistance from p to line.
// Scanning stops at the first segment within stopAt meters; pass a negative
// stopAt to always compute the exact minimum.
func PolylineDistance(p orb.Point, line orb.LineString, stopAt float64) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return Haversine(p[1], p[0], line[0][1], line[0][0])
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(line); i++ {
		d := SegmentDistance(p, line[i], line[i+1])
		if d < best {
			best = d
		}
		if best <= stopAt {
			return best
		}
	}
	return best
}
