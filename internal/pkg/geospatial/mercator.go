package geospatial

import "math"

// Web Mercator projection normalized to the unit square, as used by tile
// clustering. x grows eastwards and y grows southwards.

// LngX projects a longitude to [0, 1].
func LngX(lng float64) float64 {
	return lng/360 + 0.5
}

// LatY projects a latitude to [0, 1], clamping at the Mercator limits.
func LatY(lat float64) float64 {
	sin := math.Sin(toRad(lat))
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	switch {
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

// XLng is the inverse of LngX.
func XLng(x float64) float64 {
	return (x - 0.5) * 360
}

// YLat is the inverse of LatY.
func YLat(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}
