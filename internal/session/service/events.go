package service

import (
	"context"

	auditdomain "backoffice/portal/internal/audit/domain"
	"backoffice/portal/internal/session/domain"
)

// HandleEvent applies an external session event. signed_in and token_refreshed restore the
// reported session unless it belongs to the current principal, in which case only its contact
// details are refreshed. signed_out clears the session without invalidating it again.
func (c *Controller) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventSignedOut:
		prev := c.clear(ctx, CauseSignedOut)
		if prev.PrincipalID != "" {
			c.audit.LogEvent(ctx, prev.PrincipalID, auditdomain.ActionSignedOut, "")
			c.emit(ctx, auditdomain.ActionSignedOut, prev, "", nil)
		}
		return nil
	case domain.EventSignedIn, domain.EventTokenRefreshed:
		if ev.Session != nil && c.refresh(ev.Session) {
			return nil
		}
		return c.Restore(ctx, ev.Session)
	default:
		c.logger.WarnContext(ctx, "ignoring unknown session event", "kind", string(ev.Kind))
		return nil
	}
}

// refresh updates phone and session id when ext is the current principal. The stage is kept.
func (c *Controller) refresh(ext *domain.ExternalSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Stage == domain.StageUnauthenticated || c.state.PrincipalID != ext.PrincipalID {
		return false
	}
	if ext.Phone != "" {
		c.state.Phone = ext.Phone
	}
	if ext.SessionID != "" {
		c.state.SessionID = ext.SessionID
	}
	return true
}

// Watch applies events until the channel closes or ctx is done. Errors of individual events
// are logged and do not stop the loop.
func (c *Controller) Watch(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.HandleEvent(ctx, ev); err != nil {
				c.logger.WarnContext(ctx, "session event failed", "kind", string(ev.Kind), "error", err)
			}
		}
	}
}
