package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nestcare/backend/internal/alert/domain"
	"nestcare/backend/internal/alert/repository"
	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/notify"
	sessiondomain "nestcare/backend/internal/session/domain"
)

const listLimit = 100

// AlertRepo is the slice of the alert repository the pipeline needs.
type AlertRepo interface {
	Create(ctx context.Context, a *domain.Alert) error
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	LastOfType(ctx context.Context, sessionID string, typ domain.Type) (*domain.Alert, error)
	ListBySession(ctx context.Context, sessionID string, f repository.Filters, limit int) ([]*domain.Alert, error)
	ListByParent(ctx context.Context, parentID string, f repository.Filters, limit int) ([]*domain.Alert, error)
	ListBySitter(ctx context.Context, sitterID string, f repository.Filters, limit int) ([]*domain.Alert, error)
	ListAll(ctx context.Context, f repository.Filters, limit int) ([]*domain.Alert, error)
	SetStatus(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error)
}

// SessionReader resolves the session an alert belongs to.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// EventPublisher fans an event out to realtime subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}

// ChannelNamer yields the realtime channel alerts for a session are
// published to.
type ChannelNamer interface {
	SessionAlertsChannel(sessionID string) string
}

// RaiseInput describes one alert to raise.
type RaiseInput struct {
	SessionID string
	Type      domain.Type
	Severity  domain.Severity
	Title     string
	Message   string
}

// Pipeline raises alerts, deduplicates repeats, and walks alerts through
// their status progression.
type Pipeline struct {
	alerts   AlertRepo
	sessions SessionReader
	bus      EventPublisher
	names    ChannelNamer
	notifier notify.Notifier
	cooldown time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipeline(alerts AlertRepo, sessions SessionReader, bus EventPublisher, names ChannelNamer, notifier notify.Notifier, cooldown time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		alerts:   alerts,
		sessions: sessions,
		bus:      bus,
		names:    names,
		notifier: notifier,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Raise records a new alert for a session and notifies its parent.
//
// Cry detection alerts within the cooldown window of the previous one are
// suppressed: the prior alert is returned unchanged and nothing new is stored
// or delivered. Other alert types are never suppressed.
func (p *Pipeline) Raise(ctx context.Context, in RaiseInput) (*domain.Alert, error) {
	if in.SessionID == "" {
		return nil, &apperr.ValidationError{Field: "session_id", Reason: "is required"}
	}
	if !in.Type.Valid() {
		return nil, &apperr.ValidationError{Field: "alert_type", Reason: fmt.Sprintf("unknown type %q", in.Type)}
	}
	if !in.Severity.Valid() {
		return nil, &apperr.ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", in.Severity)}
	}

	sess, err := p.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, &apperr.TransportError{Op: "load session", Err: err}
	}
	if sess == nil {
		return nil, &apperr.NotFoundError{Resource: "session", ID: in.SessionID}
	}

	now := p.now().UTC()

	if in.Type == domain.TypeCryDetection && p.cooldown > 0 {
		last, err := p.alerts.LastOfType(ctx, in.SessionID, domain.TypeCryDetection)
		if err != nil {
			return nil, &apperr.TransportError{Op: "load last alert", Err: err}
		}
		if last != nil && now.Sub(last.CreatedAt) < p.cooldown {
			p.logger.Debug("cry alert suppressed within cooldown",
				zap.String("session_id", in.SessionID),
				zap.String("alert_id", last.ID),
			)
			return last, nil
		}
	}

	alert := &domain.Alert{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		ParentID:  sess.ParentID,
		SitterID:  sess.SitterID,
		Type:      in.Type,
		Severity:  in.Severity,
		Status:    domain.StatusNew,
		Title:     in.Title,
		Message:   in.Message,
		CreatedAt: now,
	}
	if err := p.alerts.Create(ctx, alert); err != nil {
		return nil, &apperr.TransportError{Op: "create alert", Err: err}
	}

	p.publish(ctx, alert, "alert.raised")

	notify.ScheduleAsync(p.notifier, notify.Notification{
		Title:    alert.Title,
		Body:     alert.Message,
		Priority: notifyPriority(alert.Severity),
		Data: map[string]string{
			"alert_id":   alert.ID,
			"session_id": alert.SessionID,
			"type":       string(alert.Type),
		},
	}, p.logger)

	p.logger.Info("alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("session_id", alert.SessionID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
	)
	return alert, nil
}

// MarkViewed records that the parent has seen the alert. Alerts already past
// the viewed stage are returned unchanged.
func (p *Pipeline) MarkViewed(ctx context.Context, id string) (*domain.Alert, error) {
	return p.advance(ctx, id, domain.StatusViewed)
}

// Acknowledge records that the parent has acted on the alert. Acknowledging a
// resolved alert is an error; acknowledging an already acknowledged alert is
// a no-op.
func (p *Pipeline) Acknowledge(ctx context.Context, id string) (*domain.Alert, error) {
	return p.advance(ctx, id, domain.StatusAcknowledged)
}

// Resolve closes the alert. Resolving twice is a no-op.
func (p *Pipeline) Resolve(ctx context.Context, id string) (*domain.Alert, error) {
	return p.advance(ctx, id, domain.StatusResolved)
}

// advance moves the alert to target if target is strictly later in the status
// progression than the current status. Earlier or equal targets return the
// alert unchanged, except that a resolved alert cannot be acknowledged.
func (p *Pipeline) advance(ctx context.Context, id string, target domain.Status) (*domain.Alert, error) {
	if id == "" {
		return nil, &apperr.ValidationError{Field: "alert_id", Reason: "is required"}
	}
	alert, err := p.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, &apperr.TransportError{Op: "load alert", Err: err}
	}
	if alert == nil {
		return nil, &apperr.NotFoundError{Resource: "alert", ID: id}
	}
	if target == domain.StatusAcknowledged && alert.Status == domain.StatusResolved {
		return nil, &apperr.InvalidStateError{Entity: "alert", Current: string(alert.Status), Attempted: "acknowledge"}
	}
	if !alert.Status.Before(target) {
		return alert, nil
	}

	at := p.now().UTC()
	updated, err := p.alerts.SetStatus(ctx, id, target, at)
	if err != nil {
		return nil, &apperr.TransportError{Op: "update alert status", Err: err}
	}
	if !updated {
		// Lost a race with a concurrent update. Re-read and return whatever won.
		alert, err = p.alerts.GetByID(ctx, id)
		if err != nil {
			return nil, &apperr.TransportError{Op: "reload alert", Err: err}
		}
		if alert == nil {
			return nil, &apperr.NotFoundError{Resource: "alert", ID: id}
		}
		return alert, nil
	}

	alert.Status = target
	switch target {
	case domain.StatusViewed:
		alert.ViewedAt = &at
	case domain.StatusAcknowledged:
		alert.AcknowledgedAt = &at
	case domain.StatusResolved:
		alert.ResolvedAt = &at
	}

	p.publish(ctx, alert, "alert.updated")
	return alert, nil
}

// Get returns the alert by id.
func (p *Pipeline) Get(ctx context.Context, id string) (*domain.Alert, error) {
	if id == "" {
		return nil, &apperr.ValidationError{Field: "alert_id", Reason: "is required"}
	}
	alert, err := p.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, &apperr.TransportError{Op: "load alert", Err: err}
	}
	if alert == nil {
		return nil, &apperr.NotFoundError{Resource: "alert", ID: id}
	}
	return alert, nil
}

// ListForSession returns alerts for a session, newest first.
func (p *Pipeline) ListForSession(ctx context.Context, sessionID string, f repository.Filters) ([]*domain.Alert, error) {
	if sessionID == "" {
		return nil, &apperr.ValidationError{Field: "session_id", Reason: "is required"}
	}
	alerts, err := p.alerts.ListBySession(ctx, sessionID, f, listLimit)
	if err != nil {
		return nil, &apperr.TransportError{Op: "list alerts", Err: err}
	}
	return alerts, nil
}

// ListForParent returns the parent's alerts across all their sessions, newest first.
func (p *Pipeline) ListForParent(ctx context.Context, parentID string, f repository.Filters) ([]*domain.Alert, error) {
	if parentID == "" {
		return nil, &apperr.ValidationError{Field: "parent_id", Reason: "is required"}
	}
	alerts, err := p.alerts.ListByParent(ctx, parentID, f, listLimit)
	if err != nil {
		return nil, &apperr.TransportError{Op: "list alerts", Err: err}
	}
	return alerts, nil
}

// ListForSitter returns the sitter's alerts across all their sessions, newest first.
func (p *Pipeline) ListForSitter(ctx context.Context, sitterID string, f repository.Filters) ([]*domain.Alert, error) {
	if sitterID == "" {
		return nil, &apperr.ValidationError{Field: "sitter_id", Reason: "is required"}
	}
	alerts, err := p.alerts.ListBySitter(ctx, sitterID, f, listLimit)
	if err != nil {
		return nil, &apperr.TransportError{Op: "list alerts", Err: err}
	}
	return alerts, nil
}

// ListAll returns every party's alerts, newest first.
func (p *Pipeline) ListAll(ctx context.Context, f repository.Filters) ([]*domain.Alert, error) {
	alerts, err := p.alerts.ListAll(ctx, f, listLimit)
	if err != nil {
		return nil, &apperr.TransportError{Op: "list alerts", Err: err}
	}
	return alerts, nil
}

func (p *Pipeline) publish(ctx context.Context, alert *domain.Alert, eventType string) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, p.names.SessionAlertsChannel(alert.SessionID), eventType, alert); err != nil {
		p.logger.Warn("alert event publish failed",
			zap.String("alert_id", alert.ID),
			zap.String("event", eventType),
			zap.Error(err),
		)
	}
}

func notifyPriority(s domain.Severity) string {
	switch s {
	case domain.SeverityHigh, domain.SeverityCritical:
		return "high"
	default:
		return "normal"
	}
}
