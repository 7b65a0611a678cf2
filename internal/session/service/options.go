package service

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"backoffice/portal/internal/audit"
	"backoffice/portal/internal/routing"
	"backoffice/portal/internal/telemetry"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Records are tagged subsystem=session.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithCallTimeout bounds every collaborator call. Zero or negative disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) { c.callTimeout = d }
}

// WithRoutes replaces the realm's default role table.
func WithRoutes(t routing.Table) Option {
	return func(c *Controller) { c.routes = t }
}

// WithAudit records auth outcomes in the audit trail.
func WithAudit(l audit.AuditLogger) Option {
	return func(c *Controller) {
		if l != nil {
			c.audit = l
		}
	}
}

// WithEvents emits a telemetry event for every auth outcome. Wrap slow emitters in telemetry.Async.
func WithEvents(e telemetry.EventEmitter) Option {
	return func(c *Controller) {
		if e != nil {
			c.events = e
		}
	}
}

// WithSource sets the source recorded on telemetry events (e.g. the hostname).
func WithSource(source string) Option {
	return func(c *Controller) { c.source = source }
}

// WithObserver registers fn to be called after every stage transition.
func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithMeter sets the meter used for the transition and failure counters.
func WithMeter(m metric.Meter) Option {
	return func(c *Controller) { c.meter = m }
}
