// Package repository persists GPS samples to the shared Postgres store.
package repository

import (
	"context"

	"nestcare/backend/internal/tracking/domain"
)

// Repository is the location sample store contract.
type Repository interface {
	Insert(ctx context.Context, s *domain.Sample) error
	// ListBySession returns samples newest first, at most limit of them.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.Sample, error)
	// Latest returns the most recent sample for the session, or nil.
	Latest(ctx context.Context, sessionID string) (*domain.Sample, error)
}
