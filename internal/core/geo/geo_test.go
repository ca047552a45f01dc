package geo

import (
	"math"
	"testing"
)

func TestDistanceIdentity(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{6.5244, 3.3792},
		{-33.8688, 151.2093},
		{89.9, -179.9},
	}
	for _, p := range points {
		if d := Distance(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("Distance(%v, %v, same) = %v, want 0", p[0], p[1], d)
		}
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{6.5244, 3.3792, 6.4281, 3.4219},
		{51.5074, -0.1278, 48.8566, 2.3522},
		{-1.2921, 36.8219, 0.3476, 32.5825},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1], p[2], p[3])
		ba := Distance(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("Distance not symmetric: %v vs %v", ab, ba)
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKm                 float64
		tolKm                  float64
	}{
		{"lagos island to ikeja", 6.4550, 3.3841, 6.6018, 3.3515, 16.67, 0.5},
		{"london to paris", 51.5074, -0.1278, 48.8566, 2.3522, 343.5, 1.0},
		{"one degree of latitude", 0, 0, 1, 0, 111.19, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantKm) > tt.tolKm {
				t.Errorf("Distance = %v km, want %v ± %v", got, tt.wantKm, tt.tolKm)
			}
		})
	}
}

func TestWithinRadius(t *testing.T) {
	// Pickup at Lagos island; driver ~2.3 km away.
	pickupLat, pickupLon := 6.4550, 3.3841
	driverLat, driverLon := 6.4750, 3.3900

	if WithinRadius(pickupLat, pickupLon, driverLat, driverLon, 2.0) {
		t.Error("driver beyond 2 km admitted")
	}
	if !WithinRadius(pickupLat, pickupLon, driverLat, driverLon, 3.0) {
		t.Error("driver within 3 km rejected")
	}
}
