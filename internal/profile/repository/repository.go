package repository

import (
	"context"

	"backoffice/portal/internal/profile/domain"
)

// Repository defines persistence for profiles. Get returns (nil, nil) when the principal has no profile.
type Repository interface {
	Get(ctx context.Context, principalID string) (*domain.Record, error)
	Upsert(ctx context.Context, rec *domain.Record) error
}
