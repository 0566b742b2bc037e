package geospatial

import "math"

// EarthRadiusMeters is the mean Earth radius used for every distance.
const EarthRadiusMeters = 6371000.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(math.Min(1, a)))
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := MetersToLatDegrees(radiusMeters)
	lonDelta := MetersToLonDegrees(radiusMeters, lat)

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// MetersToLatDegrees converts a north-south distance to degrees.
func MetersToLatDegrees(m float64) float64 {
	return m / 111320.0
}

// MetersToLonDegrees converts an east-west distance at the given latitude
// to degrees. Near the poles the result is clamped to a full turn.
func MetersToLonDegrees(m, lat float64) float64 {
	c := math.Cos(toRad(lat))
	if c < 1e-9 {
		return 360
	}
	return math.Min(360, m/(111320.0*c))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
