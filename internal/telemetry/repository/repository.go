package repository

import (
	"context"

	"backoffice/portal/internal/telemetry/domain"
)

// Repository defines persistence for auth events consumed by the worker.
type Repository interface {
	Save(ctx context.Context, e *domain.AuthEvent) error
}
