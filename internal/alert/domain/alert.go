// Package domain defines the Alert entity and its acknowledge/resolve lifecycle.
package domain

import "time"

// Type classifies what produced the alert.
type Type string

const (
	TypeCryDetection Type = "cry_detection"
	TypeGPSAnomaly   Type = "gps_anomaly"
	TypeEmergency    Type = "emergency"
)

// Valid reports whether t is a known alert type.
func (t Type) Valid() bool {
	switch t {
	case TypeCryDetection, TypeGPSAnomaly, TypeEmergency:
		return true
	}
	return false
}

// Severity ranks an alert's urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status tracks the viewer-side progress of an alert. It only moves forward:
// new → viewed → acknowledged → resolved.
type Status string

const (
	StatusNew          Status = "new"
	StatusViewed       Status = "viewed"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// rank orders statuses along the monotonic lifecycle.
var rank = map[Status]int{
	StatusNew:          0,
	StatusViewed:       1,
	StatusAcknowledged: 2,
	StatusResolved:     3,
}

// Before reports whether s comes strictly earlier in the lifecycle than other.
func (s Status) Before(other Status) bool {
	return rank[s] < rank[other]
}

// Alert is a persisted notice derived from a monitoring signal or an explicit
// emergency trigger. Alerts are retained indefinitely as an audit trail.
type Alert struct {
	ID        string
	SessionID string
	// ParentID and SitterID are denormalized from the session so party-scoped
	// queries need no join.
	ParentID string
	SitterID string

	Type     Type
	Severity Severity
	Title    string
	Message  string
	Status   Status

	ViewedAt       *time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

// EmergencyActionRequired reports whether viewers should be shown the
// emergency-action affordance. Surfacing only; nothing is dialed here.
func (a *Alert) EmergencyActionRequired() bool {
	return a.Severity == SeverityHigh || a.Severity == SeverityCritical
}
