package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"backoffice/portal/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long a process should wait for in-flight async emits before
// shutting down the OTel providers and Kafka writer. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// Async wraps an emitter so Emit returns immediately; the real emit runs in a goroutine with
// emitTimeout, detached from the caller's cancellation. Errors are logged.
type Async struct {
	inner  EventEmitter
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewAsync returns an Async around inner. A nil logger uses slog.Default().
func NewAsync(inner EventEmitter, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{inner: inner, logger: logger.With("subsystem", "telemetry")}
}

// Emit schedules event and always returns nil. A nil emitter or event is ignored.
func (a *Async) Emit(ctx context.Context, event *domain.AuthEvent) error {
	if a == nil || a.inner == nil || event == nil {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := a.inner.Emit(emitCtx, event); err != nil {
			a.logger.Warn("async emit failed", "event_type", event.EventType, "error", err)
		}
	}()
	return nil
}

// Drain waits for in-flight emits or until ctx is done. Returns ctx.Err() when it gave up.
func (a *Async) Drain(ctx context.Context) error {
	if a == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
