package geospatial

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestHaversine_OneDegreeLatitude(t *testing.T) {
	got := Haversine(13, 100, 14, 100)
	want := EarthRadiusMeters * math.Pi / 180
	if math.Abs(got-want) > 0.01 {
		t.Errorf("expected %.2f, got %.2f", want, got)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a := Haversine(13.7563, 100.5018, 13.7465, 100.5347)
	b := Haversine(13.7465, 100.5347, 13.7563, 100.5018)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("expected symmetric distance, got %f and %f", a, b)
	}
	if Haversine(13.7, 100.5, 13.7, 100.5) != 0 {
		t.Error("expected zero distance for identical points")
	}
}

func TestSegmentDistance(t *testing.T) {
	a := orb.Point{100.50, 13.75}
	b := orb.Point{100.52, 13.75}
	metersPerDegLat := EarthRadiusMeters * math.Pi / 180

	tests := []struct {
		name string
		p    orb.Point
		want float64
	}{
		{"on segment", orb.Point{100.51, 13.75}, 0},
		{"north of midpoint", orb.Point{100.51, 13.751}, 0.001 * metersPerDegLat},
		{"beyond endpoint b", orb.Point{100.52, 13.752}, 0.002 * metersPerDegLat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentDistance(tt.p, a, b)
			if math.Abs(got-tt.want) > 0.5 {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}
}

func TestPolylineDistance_ShortCircuit(t *testing.T) {
	line := orb.LineString{{100.50, 13.75}, {100.51, 13.75}, {100.51, 13.80}}
	p := orb.Point{100.505, 13.75}

	if d := PolylineDistance(p, line, 200); d > 200 {
		t.Errorf("expected distance within buffer, got %.2f", d)
	}
	exact := PolylineDistance(orb.Point{100.515, 13.79}, line, -1)
	want := SegmentDistance(orb.Point{100.515, 13.79}, line[1], line[2])
	if math.Abs(exact-want) > 1e-9 {
		t.Errorf("expected %.4f, got %.4f", want, exact)
	}
}

func TestPolylineDistance_Degenerate(t *testing.T) {
	if d := PolylineDistance(orb.Point{0, 0}, nil, 10); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for empty line, got %f", d)
	}
	d := PolylineDistance(orb.Point{100.5, 13.75}, orb.LineString{{100.5, 13.76}}, 10)
	if math.Abs(d-Haversine(13.75, 100.5, 13.76, 100.5)) > 1e-9 {
		t.Errorf("expected point distance for single vertex, got %f", d)
	}
}

func TestMercatorRoundTrip(t *testing.T) {
	for _, lat := range []float64{-60, -13.7, 0, 13.7563, 60} {
		if got := YLat(LatY(lat)); math.Abs(got-lat) > 1e-9 {
			t.Errorf("lat %f: round trip gave %f", lat, got)
		}
	}
	for _, lng := range []float64{-180, -100.5, 0, 100.5, 180} {
		if got := XLng(LngX(lng)); math.Abs(got-lng) > 1e-9 {
			t.Errorf("lng %f: round trip gave %f", lng, got)
		}
	}
	if LatY(90) != 0 || LatY(-90) != 1 {
		t.Error("expected poles to clamp to the unit square")
	}
}
