// Package geo provides geolocation utilities for distance computation and
// privacy-preserving location handling.
package geo

import "math"

// EarthRadiusKm is the mean radius of the Earth in kilometers.
const EarthRadiusKm = 6371.0

// DistanceKm computes the great-circle distance in kilometers between two
// points given as (longitude, latitude) pairs in degrees, using the haversine
// formula. The result is symmetric: DistanceKm(a, b) == DistanceKm(b, a).
//
// Non-finite inputs propagate: a NaN or Inf coordinate yields a NaN distance.
func DistanceKm(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)

	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// RoundKm rounds a distance to one decimal place, the precision surfaced to
// clients. NaN is returned unchanged.
func RoundKm(d float64) float64 {
	if math.IsNaN(d) {
		return d
	}
	return math.Round(d*10) / 10
}

// ValidCoordinate reports whether the pair is a finite geographic coordinate:
// longitude in [-180, 180] and latitude in [-90, 90].
func ValidCoordinate(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsInf(lon, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
