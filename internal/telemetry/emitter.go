// Package telemetry fans portal auth events out to OpenTelemetry logs and Kafka.
package telemetry

import (
	"context"
	"errors"

	"backoffice/portal/internal/telemetry/domain"
)

// EventEmitter emits auth events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.AuthEvent) error
}

// Multi emits every event to each non-nil emitter and joins their errors.
type Multi []EventEmitter

func (m Multi) Emit(ctx context.Context, event *domain.AuthEvent) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, *domain.AuthEvent) error { return nil }
