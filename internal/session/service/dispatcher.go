// Package service holds the request dispatcher and the session state machine.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/geo"
	"nestcare/backend/internal/session/domain"
)

// openListLimit caps how many open requests a discovery query considers.
const openListLimit = 100

// DispatcherRepo is the minimal session repository needed by the dispatcher.
type DispatcherRepo interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	UpdateRequest(ctx context.Context, s *domain.Session, now time.Time) (bool, error)
	ListOpen(ctx context.Context, limit int) ([]*domain.Session, error)
}

// EventPublisher pushes an event onto a realtime channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}

// ChannelNamer maps a session id onto its realtime channel names.
type ChannelNamer interface {
	SessionChannel(sessionID string) string
}

// CreateRequestInput carries everything a parent supplies when requesting care.
type CreateRequestInput struct {
	ParentID      string
	ChildIDs      []string
	StartTime     time.Time
	TimeSlots     []domain.TimeSlot
	Location      domain.Location
	SearchScope   domain.SearchScope
	MaxDistanceKm *float64
	// InvitedSitterID names the sitter for invite-scope requests.
	InvitedSitterID string
	HourlyRate      *float64
	Notes           string
}

// Candidate describes the sitter running a discovery query.
type Candidate struct {
	SitterID  string
	City      string
	Latitude  *float64
	Longitude *float64
}

// Dispatcher creates care requests and controls their visibility to candidate
// sitters. Discovery is a pure read: claiming happens via the state machine.
type Dispatcher struct {
	repo   DispatcherRepo
	bus    EventPublisher
	names  ChannelNamer
	logger *zap.Logger
}

// NewDispatcher returns a Dispatcher with the given dependencies.
func NewDispatcher(repo DispatcherRepo, bus EventPublisher, names ChannelNamer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, bus: bus, names: names, logger: logger}
}

// CreateRequest constructs a session in requested status.
func (d *Dispatcher) CreateRequest(ctx context.Context, in CreateRequestInput) (*domain.Session, error) {
	if in.ParentID == "" {
		return nil, &apperr.ValidationError{Field: "parentId", Reason: "required"}
	}

	startTime := in.StartTime
	if startTime.IsZero() && len(in.TimeSlots) > 0 {
		startTime = in.TimeSlots[0].Date
	}

	now := time.Now().UTC()
	s := &domain.Session{
		ID:            uuid.NewString(),
		ParentID:      in.ParentID,
		SitterID:      in.InvitedSitterID,
		ChildIDs:      in.ChildIDs,
		Status:        domain.StatusRequested,
		StartTime:     startTime,
		TimeSlots:     in.TimeSlots,
		SearchScope:   in.SearchScope,
		MaxDistanceKm: in.MaxDistanceKm,
		Location:      in.Location,
		HourlyRate:    in.HourlyRate,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validateRequestShape(s); err != nil {
		return nil, err
	}
	if err := d.repo.Create(ctx, s); err != nil {
		return nil, &apperr.TransportError{Op: "sessions.create", Err: err}
	}

	if err := d.bus.Publish(ctx, d.names.SessionChannel(s.ID), "session.requested", s); err != nil {
		d.logger.Warn("publish session.requested failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return s, nil
}

// UpdateRequestInput carries the editable fields of a still-unclaimed request.
// Nil fields keep their stored value.
type UpdateRequestInput struct {
	SessionID string
	ParentID  string

	ChildIDs        []string
	StartTime       *time.Time
	TimeSlots       []domain.TimeSlot
	Location        *domain.Location
	SearchScope     *domain.SearchScope
	MaxDistanceKm   *float64
	InvitedSitterID *string
	HourlyRate      *float64
	Notes           *string
}

// UpdateRequest edits a request's fields while no sitter has claimed it. Only
// the requesting parent may edit; once the session leaves requested status the
// request is frozen and the edit fails with InvalidStateError. The store-side
// status condition closes the race against a concurrent accept.
func (d *Dispatcher) UpdateRequest(ctx context.Context, in UpdateRequestInput) (*domain.Session, error) {
	s, err := d.repo.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.get", Err: err}
	}
	if s == nil {
		return nil, &apperr.NotFoundError{Resource: "session", ID: in.SessionID}
	}
	if s.ParentID != in.ParentID {
		return nil, &apperr.PermissionDeniedError{Capability: "edit this session"}
	}
	if s.Status != domain.StatusRequested {
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(s.Status), Attempted: "update"}
	}

	if in.ChildIDs != nil {
		s.ChildIDs = in.ChildIDs
	}
	if in.StartTime != nil {
		s.StartTime = *in.StartTime
	}
	if in.TimeSlots != nil {
		s.TimeSlots = in.TimeSlots
	}
	if in.Location != nil {
		s.Location = *in.Location
	}
	if in.SearchScope != nil {
		s.SearchScope = *in.SearchScope
		if s.SearchScope != domain.ScopeInvite {
			// Leaving invite scope releases the invited sitter.
			s.SitterID = ""
		}
	}
	if in.MaxDistanceKm != nil {
		s.MaxDistanceKm = in.MaxDistanceKm
	}
	if in.InvitedSitterID != nil {
		s.SitterID = *in.InvitedSitterID
	}
	if in.HourlyRate != nil {
		s.HourlyRate = in.HourlyRate
	}
	if in.Notes != nil {
		s.Notes = *in.Notes
	}
	if err := validateRequestShape(s); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := d.repo.UpdateRequest(ctx, s, now)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.update", Err: err}
	}
	if !ok {
		fresh, err := d.repo.GetByID(ctx, in.SessionID)
		if err != nil {
			return nil, &apperr.TransportError{Op: "sessions.get", Err: err}
		}
		if fresh == nil {
			return nil, &apperr.NotFoundError{Resource: "session", ID: in.SessionID}
		}
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(fresh.Status), Attempted: "update"}
	}
	s.UpdatedAt = now

	if err := d.bus.Publish(ctx, d.names.SessionChannel(s.ID), "session.updated", s); err != nil {
		d.logger.Warn("publish session.updated failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return s, nil
}

func validateRequestShape(s *domain.Session) error {
	if len(s.ChildIDs) == 0 {
		return &apperr.ValidationError{Field: "childIds", Reason: "at least one child is required"}
	}
	if s.StartTime.IsZero() && len(s.TimeSlots) == 0 {
		return &apperr.ValidationError{Field: "schedule", Reason: "a start time or at least one time slot is required"}
	}
	for _, slot := range s.TimeSlots {
		if slot.Date.IsZero() || slot.Start == "" || slot.End == "" {
			return &apperr.ValidationError{Field: "timeSlots", Reason: "each slot needs a date, start, and end"}
		}
	}
	if !s.SearchScope.Valid() {
		return &apperr.ValidationError{Field: "searchScope", Reason: "must be invite, nearby, city, or nationwide"}
	}
	if s.SearchScope == domain.ScopeNearby {
		if s.MaxDistanceKm == nil || *s.MaxDistanceKm <= 0 {
			return &apperr.ValidationError{Field: "maxDistanceKm", Reason: "required for nearby scope"}
		}
	}
	if s.SearchScope == domain.ScopeInvite && s.SitterID == "" {
		return &apperr.ValidationError{Field: "sitterId", Reason: "required for invite scope"}
	}
	if s.SearchScope == domain.ScopeCity && s.Location.City == "" {
		return &apperr.ValidationError{Field: "location.city", Reason: "required for city scope"}
	}
	return nil
}

// DiscoverAvailable returns open requests the candidate is allowed to see,
// newest first. Invite-scope requests never appear here; the invited sitter
// finds them in their own session list.
func (d *Dispatcher) DiscoverAvailable(ctx context.Context, c Candidate) ([]*domain.Session, error) {
	open, err := d.repo.ListOpen(ctx, openListLimit)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.list_open", Err: err}
	}

	visible := make([]*domain.Session, 0, len(open))
	for _, s := range open {
		if d.visibleTo(s, c) {
			visible = append(visible, s)
		}
	}
	return visible, nil
}

func (d *Dispatcher) visibleTo(s *domain.Session, c Candidate) bool {
	switch s.SearchScope {
	case domain.ScopeNationwide:
		return true
	case domain.ScopeCity:
		return s.Location.City != "" && strings.EqualFold(s.Location.City, c.City)
	case domain.ScopeNearby:
		if s.MaxDistanceKm == nil || s.Location.Latitude == nil || s.Location.Longitude == nil {
			return false
		}
		if c.Latitude == nil || c.Longitude == nil {
			return false
		}
		dist := geo.HaversineKm(*c.Latitude, *c.Longitude, *s.Location.Latitude, *s.Location.Longitude)
		return dist <= *s.MaxDistanceKm
	default:
		// invite and anything unknown is never discoverable
		return false
	}
}
