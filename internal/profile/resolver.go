// Package profile resolves the role profile of a signed-in principal.
package profile

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"backoffice/portal/internal/logging"
	"backoffice/portal/internal/profile/domain"
)

// Store is the minimal profile repository needed by the resolver.
type Store interface {
	Get(ctx context.Context, principalID string) (*domain.Record, error)
}

// DefaultLookupTimeout bounds one shared store read.
const DefaultLookupTimeout = 15 * time.Second

// Resolver fetches profiles and normalizes their roles.
type Resolver struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	// group deduplicates concurrent lookups of the same principal (restore racing a token refresh).
	group singleflight.Group
}

// NewResolver returns a Resolver reading from store. A nil logger uses slog.Default().
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logging.For(logger, "profile"), timeout: DefaultLookupTimeout}
}

// Resolve returns the normalized profile of principalID, or nil when there is none or the store failed.
// Store failures are logged, never returned. Each caller waits at most until its own ctx is done.
func (r *Resolver) Resolve(ctx context.Context, principalID string) *domain.Profile {
	if principalID == "" {
		return nil
	}
	ch := r.group.DoChan(principalID, func() (interface{}, error) {
		// The read is shared by every waiting caller and outlives the one that started it.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.store.Get(lctx, principalID)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "profile lookup abandoned", "principal_id", principalID, "error", ctx.Err())
		return nil
	}
	v, err := res.Val, res.Err
	if err != nil {
		r.logger.WarnContext(ctx, "profile lookup failed", "principal_id", principalID, "error", err)
		return nil
	}
	rec, _ := v.(*domain.Record)
	if rec == nil {
		r.logger.InfoContext(ctx, "no profile for principal", "principal_id", principalID)
		return nil
	}
	cp := *rec
	if cp.PrincipalID == "" {
		cp.PrincipalID = principalID
	}
	return domain.FromRecord(&cp)
}
