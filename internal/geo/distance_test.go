package geo

import "testing"

func TestHaversineKm(t *testing.T) {
	// Colombo to Kandy is roughly 94 km as the crow flies.
	d := HaversineKm(6.9271, 79.8612, 7.2906, 80.6337)
	if d < 90 || d > 100 {
		t.Errorf("HaversineKm = %.1f, want roughly 94", d)
	}
	if z := HaversineKm(6.9271, 79.8612, 6.9271, 79.8612); z != 0 {
		t.Errorf("distance to self = %f, want 0", z)
	}
}
