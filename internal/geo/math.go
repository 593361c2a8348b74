package geo

import "math"

// MaxLat is the latitude limit of the Web Mercator projection used by the map.
const MaxLat = 85.05112878

// mercatorExtent is half the width of the EPSG:3857 world in meters.
const mercatorExtent = 20037508.342789244

// clampPoint bounds longitude to [-180, 180] and latitude to the Mercator limit.
// Non-finite values become zero.
func clampPoint(lon, lat float64) (float64, float64) {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		lon = 0
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		lat = 0
	}

	lon = math.Max(-180, math.Min(180, lon))

	if lat > MaxLat {
		lat = MaxLat
	} else if lat < -MaxLat {
		lat = -MaxLat
	}

	return lon, lat
}

// round truncates v to the given number of decimals, precision <= 0 keeps v.
func round(v float64, precision int) float64 {
	if precision <= 0 {
		return v
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}
