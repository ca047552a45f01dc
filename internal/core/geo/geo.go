// Package geo holds the great-circle distance filter used to admit
// nearby drivers for a ride request.
package geo

import "math"

// earthRadiusKm is the spherical-Earth approximation radius.
const earthRadiusKm = 6371.0

// Distance returns the haversine distance between two coordinates in
// kilometres.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// WithinRadius reports whether the candidate point lies within radiusKm
// of the pickup point.
func WithinRadius(pickupLat, pickupLon, lat, lon, radiusKm float64) bool {
	return Distance(pickupLat, pickupLon, lat, lon) <= radiusKm
}
