// Package domain defines the Session entity and its status machine.
package domain

import "time"

// Status is a session's lifecycle state.
type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// SearchScope controls which sitters can discover an unclaimed session.
type SearchScope string

const (
	ScopeInvite     SearchScope = "invite"
	ScopeNearby     SearchScope = "nearby"
	ScopeCity       SearchScope = "city"
	ScopeNationwide SearchScope = "nationwide"
)

// CancelParty identifies who cancelled a session.
type CancelParty string

const (
	CancelledByParent CancelParty = "parent"
	CancelledBySitter CancelParty = "sitter"
)

// Location is where care takes place. Coordinates are optional; nearby-scope
// sessions need them for distance filtering.
type Location struct {
	Address   string   `json:"address"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// TimeSlot is one booked block of a multi-slot session.
type TimeSlot struct {
	Date  time.Time `json:"date"`
	Start string    `json:"start"`
	End   string    `json:"end"`
	Hours float64   `json:"hours"`
}

// Session is one care engagement from request through completion or cancellation.
// It is never deleted, only moved to a terminal status.
type Session struct {
	ID       string
	ParentID string
	SitterID string // empty until a sitter claims the request
	ChildIDs []string

	Status    Status
	StartTime time.Time
	EndTime   *time.Time // set only in terminal statuses
	TimeSlots []TimeSlot

	SearchScope   SearchScope
	MaxDistanceKm *float64 // meaningful only for ScopeNearby
	Location      Location

	GPSTrackingEnabled  bool
	CryDetectionEnabled bool
	MonitoringEnabled   bool
	LastLocationUpdate  *time.Time
	LastCryDetection    *time.Time
	CryAlertsCount      int

	HourlyRate    *float64
	TotalAmount   *float64
	PaymentStatus string
	Notes         string

	CompletedAt             *time.Time
	CancelledAt             *time.Time
	CancelledBy             CancelParty
	CancellationReason      string
	CancellationFeeEligible bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// transitions is the only legal set of status edges. Terminal statuses have no exits.
var transitions = map[Status][]Status{
	StatusRequested: {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether the scope is one of the four known values.
func (s SearchScope) Valid() bool {
	switch s {
	case ScopeInvite, ScopeNearby, ScopeCity, ScopeNationwide:
		return true
	}
	return false
}

// Open reports whether the session is an unclaimed request.
func (s *Session) Open() bool {
	return s.Status == StatusRequested && s.SitterID == ""
}
