package domain

// DefaultCorridorBuffer is the corridor half-width in meters.
const DefaultCorridorBuffer = 200.0

// Corridor is an ordered route polyline with a buffer radius.
// Fallback is set when the provider failed and the corridor is the
// straight segment between the endpoints.
type Corridor struct {
	Vertices     []LatLng `json:"vertices"`
	BufferMeters float64  `json:"buffer_meters"`
	Fallback     bool     `json:"fallback"`
}

// StraightCorridor returns the two-vertex fallback corridor.
func StraightCorridor(start, end LatLng, buffer float64) Corridor {
	return Corridor{
		Vertices:     []LatLng{start, end},
		BufferMeters: buffer,
		Fallback:     true,
	}
}
