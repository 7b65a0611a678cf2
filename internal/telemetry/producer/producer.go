// Package producer publishes auth events to a message broker (Kafka) for the worker to ship.
package producer

import (
	"context"

	"backoffice/portal/internal/telemetry/domain"
)

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; wrap in telemetry.Async if needed.
	Emit(ctx context.Context, event *domain.AuthEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
