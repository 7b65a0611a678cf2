package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"backoffice/portal/internal/autherr"
	"backoffice/portal/internal/logging"
	"backoffice/portal/internal/session/domain"
	telemetrydomain "backoffice/portal/internal/telemetry/domain"
)

const instrumentationName = "backoffice/portal/session"

// Telemetry event types that have no audit action of their own.
const (
	EventSessionRestored   = "session_restored"
	EventOTPDeliveryFailed = "otp_delivery_failed"
)

// Cause names what triggered a transition.
type Cause string

const (
	CauseLogin       Cause = "login"
	CauseOTPVerified Cause = "otp_verified"
	CauseRestore     Cause = "restore"
	CauseLogout      Cause = "logout"
	CauseSignedOut   Cause = "signed_out"
)

// Transition describes one change of the session. From and To may be equal when a new
// principal replaces the old one in the same stage.
type Transition struct {
	From        domain.Stage
	To          domain.Stage
	PrincipalID string
	Cause       Cause
}

// Observer is called synchronously after a transition, outside the controller's locks.
type Observer func(Transition)

func (c *Controller) initInstruments() {
	c.logger = logging.For(c.logger, "session").With("realm", string(c.realm))
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.meter == nil {
		c.meter = otel.Meter(instrumentationName)
	}
	var err error
	c.transitions, err = c.meter.Int64Counter("portal.session.transitions",
		metric.WithDescription("Session stage transitions"))
	if err != nil {
		c.transitions, _ = noop.Meter{}.Int64Counter("portal.session.transitions")
	}
	c.failures, err = c.meter.Int64Counter("portal.session.failures",
		metric.WithDescription("Failed session operations by reason"))
	if err != nil {
		c.failures, _ = noop.Meter{}.Int64Counter("portal.session.failures")
	}
}

func (c *Controller) publish(ctx context.Context, from, to domain.State, cause Cause) {
	t := Transition{From: from.Stage, To: to.Stage, PrincipalID: to.PrincipalID, Cause: cause}
	if t.PrincipalID == "" {
		t.PrincipalID = from.PrincipalID
	}
	c.logger.DebugContext(ctx, "transition", "from", t.From.String(), "to", t.To.String(), "cause", string(cause))
	c.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("realm", string(c.realm)),
		attribute.String("to", t.To.String()),
		attribute.String("cause", string(cause)),
	))
	for _, fn := range c.observers {
		fn(t)
	}
}

func (c *Controller) countFailure(ctx context.Context, op string, err error) {
	c.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("realm", string(c.realm)),
		attribute.String("op", op),
		attribute.String("reason", string(autherr.ReasonOf(err))),
	))
}

// emit sends a telemetry event. Errors are logged; emitters are best-effort.
func (c *Controller) emit(ctx context.Context, eventType string, st domain.State, reason autherr.Reason, attrs map[string]string) {
	ev := &telemetrydomain.AuthEvent{
		ID:          uuid.New().String(),
		EventType:   eventType,
		Realm:       string(c.realm),
		PrincipalID: st.PrincipalID,
		SessionID:   st.SessionID,
		Stage:       st.Stage.String(),
		Reason:      string(reason),
		Source:      c.source,
		Attributes:  attrs,
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.events.Emit(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "telemetry emit failed", "event_type", eventType, "error", err)
	}
}

func (c *Controller) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("portal.realm", string(c.realm))))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		var ae *autherr.Error
		if errors.As(err, &ae) {
			span.SetAttributes(attribute.String("portal.auth.reason", string(ae.Reason)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

