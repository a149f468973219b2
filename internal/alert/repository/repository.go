// Package repository persists alerts to the shared Postgres store.
package repository

import (
	"context"
	"time"

	"nestcare/backend/internal/alert/domain"
)

// Filters narrows an alert listing. Nil fields match everything.
type Filters struct {
	SessionID *string
	Status    *domain.Status
	Severity  *domain.Severity
	Type      *domain.Type
}

// Repository is the alert store contract.
type Repository interface {
	Create(ctx context.Context, a *domain.Alert) error
	// GetByID returns the alert for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	// LastOfType returns the most recent alert of the given type for the
	// session, or nil if none exists. Used for the dedup cooldown.
	LastOfType(ctx context.Context, sessionID string, t domain.Type) (*domain.Alert, error)
	ListBySession(ctx context.Context, sessionID string, f Filters, limit int) ([]*domain.Alert, error)
	// ListByParent and ListBySitter return the party's alerts across all their
	// sessions; ListAll is the admin view. All three are newest first.
	ListByParent(ctx context.Context, parentID string, f Filters, limit int) ([]*domain.Alert, error)
	ListBySitter(ctx context.Context, sitterID string, f Filters, limit int) ([]*domain.Alert, error)
	ListAll(ctx context.Context, f Filters, limit int) ([]*domain.Alert, error)
	// SetStatus advances the alert's status, recording the matching timestamp.
	// The update only applies while the stored status is earlier in the
	// lifecycle; SetStatus reports whether a row was changed.
	SetStatus(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error)
}
