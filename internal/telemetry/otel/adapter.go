package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"backoffice/portal/internal/telemetry"
	"backoffice/portal/internal/telemetry/domain"
)

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: provider.Logger("portal.auth")}
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: logger}
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the auth event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.AuthEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	if body, err := json.Marshal(event); err == nil {
		rec.SetBody(otellog.StringValue(string(body)))
	}
	if event.Reason != "" {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	attrs := []struct{ k, v string }{
		{"event_type", event.EventType},
		{"realm", event.Realm},
		{"principal_id", event.PrincipalID},
		{"session_id", event.SessionID},
		{"stage", event.Stage},
		{"reason", event.Reason},
		{"source", event.Source},
	}
	for _, a := range attrs {
		if a.v != "" {
			rec.AddAttributes(otellog.String(a.k, a.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
