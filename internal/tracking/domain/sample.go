// Package domain defines location samples recorded during active sessions.
package domain

import "time"

// Sample is one GPS fix reported by the sitter's device.
type Sample struct {
	ID        string
	SessionID string
	Latitude  float64
	Longitude float64
	// AccuracyM is the reported horizontal accuracy radius in meters, if the
	// device provided one.
	AccuracyM *float64
	// AltitudeM and SpeedMps are reported when the device provides them.
	AltitudeM *float64
	SpeedMps  *float64
	// Heading is the direction of travel in degrees from north, if known.
	Heading    *float64
	RecordedAt time.Time
}
