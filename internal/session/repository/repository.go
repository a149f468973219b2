// Package repository persists sessions to the shared Postgres store.
package repository

import (
	"context"
	"time"

	"nestcare/backend/internal/session/domain"
)

// Repository is the session store contract. Mutations that gate on the current
// status return a bool reporting whether a row was updated; callers decide
// between idempotent replay and conflict by re-reading.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// UpdateRequest rewrites a request's editable fields while it is still in
	// requested status, reporting whether a row was changed.
	UpdateRequest(ctx context.Context, s *domain.Session, now time.Time) (bool, error)
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListOpen returns unclaimed, non-invite requests, newest first (ties by id).
	ListOpen(ctx context.Context, limit int) ([]*domain.Session, error)
	ListByParent(ctx context.Context, parentID string, status *domain.Status, limit int) ([]*domain.Session, error)
	ListBySitter(ctx context.Context, sitterID string, status *domain.Status, limit int) ([]*domain.Session, error)
	ListAll(ctx context.Context, status *domain.Status, limit int) ([]*domain.Session, error)

	// ClaimBySitter binds sitterID to a still-claimable request. The store-side
	// condition is the single-writer guard: first writer wins, the second sees
	// claimed=false.
	ClaimBySitter(ctx context.Context, id, sitterID string, now time.Time) (claimed bool, err error)
	Start(ctx context.Context, id string, now time.Time) (bool, error)
	Complete(ctx context.Context, id string, now time.Time) (bool, error)
	Cancel(ctx context.Context, id string, by domain.CancelParty, reason string, feeEligible bool, now time.Time) (bool, error)

	// SetGPSTracking and SetCryDetection each write only their own toggle
	// column, so interleaved toggle calls cannot clobber the other flag.
	SetGPSTracking(ctx context.Context, id string, enabled bool, now time.Time) error
	SetCryDetection(ctx context.Context, id string, enabled bool, now time.Time) error
	RecordLocationPing(ctx context.Context, id string, at time.Time) error
	RecordCryDetection(ctx context.Context, id string, at time.Time) error
}
