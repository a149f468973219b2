package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/session/domain"
)

// LifecycleRepo is the minimal session repository needed by the state machine.
type LifecycleRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ClaimBySitter(ctx context.Context, id, sitterID string, now time.Time) (bool, error)
	Start(ctx context.Context, id string, now time.Time) (bool, error)
	Complete(ctx context.Context, id string, now time.Time) (bool, error)
	Cancel(ctx context.Context, id string, by domain.CancelParty, reason string, feeEligible bool, now time.Time) (bool, error)
}

// MonitorStopper force-stops any capture loops for a session. Best-effort; never fails.
type MonitorStopper interface {
	StopMonitoring(ctx context.Context, sessionID string)
}

// Lifecycle owns the session status transitions and the business rules gating
// each one. Every transition is idempotent against replay of its own target
// status, since the realtime layer delivers at least once.
type Lifecycle struct {
	repo    LifecycleRepo
	monitor MonitorStopper
	bus     EventPublisher
	names   ChannelNamer
	logger  *zap.Logger
}

// NewLifecycle returns a Lifecycle with the given dependencies.
func NewLifecycle(repo LifecycleRepo, monitor MonitorStopper, bus EventPublisher, names ChannelNamer, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{repo: repo, monitor: monitor, bus: bus, names: names, logger: logger}
}

// Accept binds sitterID to a requested session. The store's conditional update
// is the single-writer guard: of two racing sitters exactly one claims the row,
// the other gets AlreadyClaimedError.
func (l *Lifecycle) Accept(ctx context.Context, sessionID, sitterID string) (*domain.Session, error) {
	s, err := l.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch s.Status {
	case domain.StatusRequested:
		// claimable below
	case domain.StatusAccepted:
		if s.SitterID == sitterID {
			return s, nil // replay of our own accept
		}
		return nil, &apperr.AlreadyClaimedError{SessionID: sessionID}
	default:
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(s.Status), Attempted: string(domain.StatusAccepted)}
	}

	now := time.Now().UTC()
	claimed, err := l.repo.ClaimBySitter(ctx, sessionID, sitterID, now)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.claim", Err: err}
	}
	if !claimed {
		// Lost the race or the request moved on; re-read to tell which.
		fresh, err := l.get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == domain.StatusAccepted && fresh.SitterID == sitterID {
			return fresh, nil
		}
		if fresh.SitterID != "" && fresh.SitterID != sitterID {
			return nil, &apperr.AlreadyClaimedError{SessionID: sessionID}
		}
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(fresh.Status), Attempted: string(domain.StatusAccepted)}
	}

	s.Status = domain.StatusAccepted
	s.SitterID = sitterID
	s.UpdatedAt = now
	l.publish(ctx, s, "session.accepted")
	return s, nil
}

// Start moves an accepted session to active, confirming its start time.
func (l *Lifecycle) Start(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := l.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == domain.StatusActive {
		return s, nil
	}
	if s.Status != domain.StatusAccepted {
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(s.Status), Attempted: string(domain.StatusActive)}
	}

	now := time.Now().UTC()
	ok, err := l.repo.Start(ctx, sessionID, now)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.start", Err: err}
	}
	if !ok {
		return l.reconcile(ctx, sessionID, domain.StatusActive)
	}

	s.Status = domain.StatusActive
	s.UpdatedAt = now
	l.publish(ctx, s, "session.started")
	return s, nil
}

// Complete terminalizes an active session. Monitoring is force-stopped before
// the status write so no capture loop outlives the session.
func (l *Lifecycle) Complete(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := l.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == domain.StatusCompleted {
		return s, nil
	}
	if s.Status != domain.StatusActive {
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(s.Status), Attempted: string(domain.StatusCompleted)}
	}

	l.monitor.StopMonitoring(ctx, sessionID)

	now := time.Now().UTC()
	ok, err := l.repo.Complete(ctx, sessionID, now)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.complete", Err: err}
	}
	if !ok {
		return l.reconcile(ctx, sessionID, domain.StatusCompleted)
	}

	s.Status = domain.StatusCompleted
	s.EndTime = &now
	s.CompletedAt = &now
	s.GPSTrackingEnabled = false
	s.CryDetectionEnabled = false
	s.MonitoringEnabled = false
	s.UpdatedAt = now
	l.publish(ctx, s, "session.completed")
	return s, nil
}

// Cancel terminalizes a non-terminal session. Cancelling from accepted or active
// flags fee eligibility for the commercial layer; from requested there is no fee.
func (l *Lifecycle) Cancel(ctx context.Context, sessionID string, by domain.CancelParty, reason string) (*domain.Session, error) {
	if by != domain.CancelledByParent && by != domain.CancelledBySitter {
		return nil, &apperr.ValidationError{Field: "cancelledBy", Reason: "must be parent or sitter"}
	}

	s, err := l.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == domain.StatusCancelled {
		return s, nil
	}
	if s.Status == domain.StatusCompleted {
		return nil, &apperr.InvalidStateError{Entity: "session", Current: string(s.Status), Attempted: string(domain.StatusCancelled)}
	}

	if s.Status == domain.StatusActive {
		l.monitor.StopMonitoring(ctx, sessionID)
	}
	feeEligible := s.Status == domain.StatusAccepted || s.Status == domain.StatusActive

	now := time.Now().UTC()
	ok, err := l.repo.Cancel(ctx, sessionID, by, reason, feeEligible, now)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.cancel", Err: err}
	}
	if !ok {
		return l.reconcile(ctx, sessionID, domain.StatusCancelled)
	}

	s.Status = domain.StatusCancelled
	s.EndTime = &now
	s.CancelledAt = &now
	s.CancelledBy = by
	s.CancellationReason = reason
	s.CancellationFeeEligible = feeEligible
	s.GPSTrackingEnabled = false
	s.CryDetectionEnabled = false
	s.MonitoringEnabled = false
	s.UpdatedAt = now
	l.publish(ctx, s, "session.cancelled")
	return s, nil
}

// Get returns the session, mapping a missing row to NotFoundError.
func (l *Lifecycle) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return l.get(ctx, sessionID)
}

func (l *Lifecycle) get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := l.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, &apperr.TransportError{Op: "sessions.get", Err: err}
	}
	if s == nil {
		return nil, &apperr.NotFoundError{Resource: "session", ID: sessionID}
	}
	return s, nil
}

// reconcile handles a conditional update that matched no row: a concurrent
// writer got there first. Replay of the same target status is a success.
func (l *Lifecycle) reconcile(ctx context.Context, sessionID string, target domain.Status) (*domain.Session, error) {
	fresh, err := l.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fresh.Status == target {
		return fresh, nil
	}
	return nil, &apperr.InvalidStateError{Entity: "session", Current: string(fresh.Status), Attempted: string(target)}
}

func (l *Lifecycle) publish(ctx context.Context, s *domain.Session, eventType string) {
	if err := l.bus.Publish(ctx, l.names.SessionChannel(s.ID), eventType, s); err != nil {
		l.logger.Warn("publish session event failed",
			zap.String("session_id", s.ID),
			zap.String("event", eventType),
			zap.Error(err),
		)
	}
}
