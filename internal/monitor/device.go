// Package monitor runs the live-monitoring loops for active sessions:
// periodic GPS sampling and audio-based cry detection. The device
// capabilities behind the loops are injected collaborators; real
// implementations live on the sitter's device.
package monitor

import (
	"context"
	"time"
)

// Position is one fix from the positioning capability.
type Position struct {
	Latitude  float64
	Longitude float64
	AccuracyM *float64
	AltitudeM *float64
	SpeedMps  *float64
	Heading   *float64
}

// Positioner exposes the device's positioning capability.
//
// RequestPermission returns apperr.PermissionDeniedError when the user has
// denied location access; any other error means the capability is
// unavailable.
type Positioner interface {
	RequestPermission(ctx context.Context) error
	SampleOnce(ctx context.Context) (Position, error)
}

// AudioCapturer exposes the device's audio capture capability. Capture
// records for the given window and returns the raw chunk.
type AudioCapturer interface {
	RequestPermission(ctx context.Context) error
	Capture(ctx context.Context, window time.Duration) ([]byte, error)
}

// Classification is the verdict of the distress classifier for one chunk.
type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// LabelCrying is the positive classification label.
const LabelCrying = "crying"

// Classifier scores an audio chunk for distress.
type Classifier interface {
	Classify(ctx context.Context, chunk []byte) (Classification, error)
}
