// Package service implements the two-factor session controller: credentials, then an OTP
// challenge, then a role-resolved profile. One Controller owns one session per process.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"backoffice/portal/internal/audit"
	auditdomain "backoffice/portal/internal/audit/domain"
	"backoffice/portal/internal/autherr"
	identitydomain "backoffice/portal/internal/identity/domain"
	mfadomain "backoffice/portal/internal/mfa/domain"
	profiledomain "backoffice/portal/internal/profile/domain"
	"backoffice/portal/internal/routing"
	"backoffice/portal/internal/session/domain"
	"backoffice/portal/internal/telemetry"
)

// DefaultCallTimeout bounds each collaborator call when no timeout is configured.
const DefaultCallTimeout = 15 * time.Second

// CredentialStore checks identifier/secret pairs and ends external sessions.
type CredentialStore interface {
	Verify(ctx context.Context, identifier, secret string) (*identitydomain.Credentials, error)
	Invalidate(ctx context.Context, principalID string) error
}

// ProfileResolver returns the normalized profile of a principal, or nil when there is none.
type ProfileResolver interface {
	Resolve(ctx context.Context, principalID string) *profiledomain.Profile
}

// Challenges is the OTP challenge lifecycle the controller drives.
type Challenges interface {
	Issue(ctx context.Context, principalID, phone string) (mfadomain.Challenge, error)
	Reissue(ctx context.Context, principalID, phone string) (mfadomain.Challenge, error)
	Verify(ctx context.Context, principalID, code string) error
	Get(principalID string) (mfadomain.Challenge, bool)
	Pending(ctx context.Context, principalID string) (mfadomain.Challenge, bool)
	Discard(ctx context.Context, principalID string)
	Now() time.Time
}

// FlagStore persists the realm's "OTP already verified" flag outside the process. The flag
// holds the principal that verified; an empty principal clears it.
type FlagStore interface {
	VerifiedPrincipal(ctx context.Context) (string, error)
	SetOTPVerified(ctx context.Context, principalID string) error
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	PrincipalID string
	Phone       string
	SessionID   string
	// Token is the signed external session token; callers persist it to resume later.
	Token     string
	ExpiresAt time.Time
	// OTPSent is false when the first challenge could not be delivered; call Resend.
	OTPSent   bool
	Challenge *mfadomain.Challenge
}

// Controller is the session state machine of one realm.
// Login, SubmitOTP, Resend and Restore are serialized. Logout and external sign-out only take
// the state lock, so they are honored while one of those is waiting on I/O; the in-flight
// result is then discarded.
type Controller struct {
	realm      routing.Realm
	routes     routing.Table
	creds      CredentialStore
	profiles   ProfileResolver
	challenges Challenges
	flags      FlagStore

	callTimeout time.Duration
	logger      *slog.Logger
	audit       audit.AuditLogger
	events      telemetry.EventEmitter
	source      string
	observers   []Observer
	tracer      trace.Tracer
	meter       metric.Meter
	transitions metric.Int64Counter
	failures    metric.Int64Counter

	opMu  sync.Mutex
	mu    sync.Mutex
	state domain.State
	stage domain.AtomicStage
}

// New returns a Controller for realm in the Unauthenticated stage.
func New(realm routing.Realm, creds CredentialStore, profiles ProfileResolver, challenges Challenges, flags FlagStore, opts ...Option) *Controller {
	c := &Controller{
		realm:       realm,
		routes:      routing.TableFor(realm),
		creds:       creds,
		profiles:    profiles,
		challenges:  challenges,
		flags:       flags,
		callTimeout: DefaultCallTimeout,
		audit:       audit.NopLogger{},
		events:      telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initInstruments()
	return c
}

// Realm returns the realm the controller serves.
func (c *Controller) Realm() routing.Realm { return c.realm }

// CurrentStage returns the stage without waiting for in-flight operations.
func (c *Controller) CurrentStage() domain.Stage { return c.stage.Load() }

// Login checks the credentials, resets the persisted flag, moves to CredentialsVerified and
// issues the first challenge. A failed delivery still returns a result, with OTPSent false.
// On failure the session is left as it was.
func (c *Controller) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return nil, autherr.ErrInvalidCredentials
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, span := c.startSpan(ctx, "session.Login")
	var err error
	defer func() { endSpan(span, err) }()

	before := c.snapshotState()
	cctx, cancel := c.callCtx(ctx)
	creds, verr := c.creds.Verify(cctx, identifier, secret)
	cancel()
	if verr == nil && creds == nil {
		verr = autherr.ErrInvalidCredentials
	}
	if verr != nil {
		err = classify(verr)
		c.logger.InfoContext(ctx, "login failed", "reason", autherr.ReasonOf(err), "error", verr)
		c.audit.LogEvent(ctx, "", auditdomain.ActionLoginFailure, "reason="+string(autherr.ReasonOf(err)))
		c.emit(ctx, auditdomain.ActionLoginFailure, before, autherr.ReasonOf(err), nil)
		c.countFailure(ctx, "login", err)
		return nil, err
	}
	if !c.current(before.Generation, before.PrincipalID) {
		c.invalidateStale(ctx, creds.PrincipalID)
		err = autherr.ErrSessionExpired
		return nil, err
	}

	// A stale true flag from an earlier session must never fast-path this one.
	fctx, fcancel := c.callCtx(ctx)
	ferr := c.flags.SetOTPVerified(fctx, "")
	fcancel()
	if ferr != nil {
		c.logger.WarnContext(ctx, "could not reset otp flag", "error", ferr)
		c.invalidateStale(ctx, creds.PrincipalID)
		err = autherr.Network(ferr)
		return nil, err
	}

	next := domain.State{
		PrincipalID: creds.PrincipalID,
		Stage:       domain.StageCredentialsVerified,
		Phone:       creds.Phone,
		SessionID:   creds.SessionID,
	}
	applied, ok := c.replace(before.Generation, before.PrincipalID, next)
	if !ok {
		c.invalidateStale(ctx, creds.PrincipalID)
		err = autherr.ErrSessionExpired
		return nil, err
	}
	c.challenges.Discard(ctx, before.PrincipalID)
	c.challenges.Discard(ctx, applied.PrincipalID)
	c.publish(ctx, before, applied, CauseLogin)
	c.audit.LogEvent(ctx, applied.PrincipalID, auditdomain.ActionLoginSuccess, "session_id="+applied.SessionID)
	c.emit(ctx, auditdomain.ActionLoginSuccess, applied, "", nil)

	res := &LoginResult{
		PrincipalID: applied.PrincipalID,
		Phone:       applied.Phone,
		SessionID:   applied.SessionID,
		Token:       creds.Token,
		ExpiresAt:   creds.ExpiresAt,
	}
	ch, ierr := c.issue(ctx, applied, false)
	if ierr != nil {
		if autherr.ReasonOf(ierr) == autherr.ReasonSessionExpired {
			err = ierr
			return nil, err
		}
		return res, nil
	}
	res.OTPSent = true
	res.Challenge = &ch
	return res, nil
}

// SubmitOTP verifies code against the live challenge. On success the profile is resolved,
// the flag persisted and the session moves to OTPVerified. Failures leave the session in
// CredentialsVerified and carry the reason unchanged.
func (c *Controller) SubmitOTP(ctx context.Context, code string) (*profiledomain.Profile, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, span := c.startSpan(ctx, "session.SubmitOTP")
	var err error
	defer func() { endSpan(span, err) }()

	st := c.snapshotState()
	if st.Stage != domain.StageCredentialsVerified || st.PrincipalID == "" {
		err = autherr.ErrSessionExpired
		return nil, err
	}

	cctx, cancel := c.callCtx(ctx)
	verr := c.challenges.Verify(cctx, st.PrincipalID, strings.TrimSpace(code))
	cancel()
	if !c.current(st.Generation, st.PrincipalID) {
		err = autherr.ErrSessionExpired
		return nil, err
	}
	if verr != nil {
		err = classify(verr)
		attrs := map[string]string{}
		var ae *autherr.Error
		if errors.As(err, &ae) && ae.Reason == autherr.ReasonInvalidCode {
			attrs["attempts_remaining"] = strconv.Itoa(ae.Remaining)
		}
		c.logger.InfoContext(ctx, "otp rejected", "principal_id", st.PrincipalID, "reason", autherr.ReasonOf(err))
		c.audit.LogEvent(ctx, st.PrincipalID, auditdomain.ActionOTPFailed, "reason="+string(autherr.ReasonOf(err)))
		c.emit(ctx, auditdomain.ActionOTPFailed, st, autherr.ReasonOf(err), attrs)
		c.countFailure(ctx, "submit_otp", err)
		return nil, err
	}

	p, perr := c.resolve(ctx, st.PrincipalID)
	if !c.current(st.Generation, st.PrincipalID) {
		err = autherr.ErrSessionExpired
		return nil, err
	}
	if perr != nil {
		err = perr
		c.logger.WarnContext(ctx, "profile unavailable after otp", "principal_id", st.PrincipalID, "reason", autherr.ReasonOf(err))
		c.emit(ctx, auditdomain.ActionOTPFailed, st, autherr.ReasonOf(err), nil)
		c.countFailure(ctx, "submit_otp", err)
		return nil, err
	}

	next := st
	next.Stage = domain.StageOTPVerified
	next.Profile = p
	applied, ok := c.replace(st.Generation, st.PrincipalID, next)
	if !ok {
		err = autherr.ErrSessionExpired
		return nil, err
	}
	c.challenges.Discard(ctx, applied.PrincipalID)
	c.persistVerified(ctx, applied)
	c.publish(ctx, st, applied, CauseOTPVerified)
	c.audit.LogEvent(ctx, applied.PrincipalID, auditdomain.ActionOTPVerified, "role="+p.Role)
	c.emit(ctx, auditdomain.ActionOTPVerified, applied, "", map[string]string{"role": p.Role})
	return copyProfile(p), nil
}

// Resend issues a new challenge once the cooldown of the current one has passed.
func (c *Controller) Resend(ctx context.Context) (mfadomain.Challenge, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, span := c.startSpan(ctx, "session.Resend")
	var err error
	defer func() { endSpan(span, err) }()

	st := c.snapshotState()
	if st.Stage != domain.StageCredentialsVerified || st.PrincipalID == "" {
		err = autherr.ErrSessionExpired
		return mfadomain.Challenge{}, err
	}
	cctx, cancel := c.callCtx(ctx)
	ch, rerr := c.challenges.Reissue(cctx, st.PrincipalID, st.Phone)
	cancel()
	if !c.current(st.Generation, st.PrincipalID) {
		c.challenges.Discard(ctx, st.PrincipalID)
		err = autherr.ErrSessionExpired
		return mfadomain.Challenge{}, err
	}
	if rerr != nil {
		err = classify(rerr)
		c.logger.InfoContext(ctx, "resend refused", "principal_id", st.PrincipalID, "reason", autherr.ReasonOf(err))
		c.countFailure(ctx, "resend", err)
		return mfadomain.Challenge{}, err
	}
	c.audit.LogEvent(ctx, st.PrincipalID, auditdomain.ActionOTPSent, "resend=true")
	c.emit(ctx, auditdomain.ActionOTPSent, st, "", map[string]string{"resend": "true"})
	return ch, nil
}

// Restore adopts an external session reported by the credential store. A nil session clears
// everything. When the persisted flag was set by the same principal the profile is resolved and
// the session goes straight to OTPVerified without touching the OTP channel. Otherwise it waits
// in CredentialsVerified: an outstanding challenge of the principal is kept, and a new one only
// goes out through the resend gate, so restoring never refills the attempt budget early.
// ResendNotYetAllowed is returned when the gate refused; the session is adopted regardless.
func (c *Controller) Restore(ctx context.Context, ext *domain.ExternalSession) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.restoreLocked(ctx, ext)
}

func (c *Controller) restoreLocked(ctx context.Context, ext *domain.ExternalSession) error {
	ctx, span := c.startSpan(ctx, "session.Restore")
	var err error
	defer func() { endSpan(span, err) }()

	if ext == nil || ext.PrincipalID == "" {
		c.clear(ctx, CauseRestore)
		return nil
	}
	before := c.snapshotState()

	fctx, fcancel := c.callCtx(ctx)
	holder, ferr := c.flags.VerifiedPrincipal(fctx)
	fcancel()
	if ferr != nil {
		c.logger.WarnContext(ctx, "could not read otp flag, requiring otp", "error", ferr)
		holder = ""
	}
	verified := holder == ext.PrincipalID
	if holder != "" && !verified {
		// Left by another principal's session; it must not outlive the switch.
		c.resetFlag(ctx)
	}

	next := domain.State{
		PrincipalID: ext.PrincipalID,
		Stage:       domain.StageCredentialsVerified,
		Phone:       ext.Phone,
		SessionID:   ext.SessionID,
	}
	if verified {
		p, perr := c.resolve(ctx, ext.PrincipalID)
		if !c.current(before.Generation, before.PrincipalID) {
			err = autherr.ErrSessionExpired
			return err
		}
		if perr == nil {
			next.Stage = domain.StageOTPVerified
			next.Profile = p
			applied, ok := c.replace(before.Generation, before.PrincipalID, next)
			if !ok {
				err = autherr.ErrSessionExpired
				return err
			}
			c.challenges.Discard(ctx, before.PrincipalID)
			c.publish(ctx, before, applied, CauseRestore)
			c.emit(ctx, EventSessionRestored, applied, "", map[string]string{"fast_path": "true"})
			return nil
		}
		// Adopt the session but require a code; an unreachable store keeps the flag.
		err = perr
		applied, ok := c.replace(before.Generation, before.PrincipalID, next)
		if !ok {
			err = autherr.ErrSessionExpired
			return err
		}
		c.dropPrevious(ctx, before, applied)
		if autherr.ReasonOf(perr) == autherr.ReasonProfileMissing {
			c.resetFlag(ctx)
		}
		c.publish(ctx, before, applied, CauseRestore)
		c.emit(ctx, EventSessionRestored, applied, autherr.ReasonOf(perr), nil)
		c.countFailure(ctx, "restore", perr)
		return err
	}

	applied, ok := c.replace(before.Generation, before.PrincipalID, next)
	if !ok {
		err = autherr.ErrSessionExpired
		return err
	}
	c.dropPrevious(ctx, before, applied)
	c.publish(ctx, before, applied, CauseRestore)
	c.emit(ctx, EventSessionRestored, applied, "", nil)

	cctx, cancel := c.callCtx(ctx)
	_, pending := c.challenges.Pending(cctx, applied.PrincipalID)
	cancel()
	if pending {
		c.logger.InfoContext(ctx, "keeping outstanding otp challenge", "principal_id", applied.PrincipalID)
		return nil
	}
	if _, ierr := c.issue(ctx, applied, true); ierr != nil {
		switch autherr.ReasonOf(ierr) {
		case autherr.ReasonSessionExpired, autherr.ReasonResendNotYetAllowed:
			err = ierr
			return err
		}
	}
	return nil
}

// dropPrevious discards the challenge of the replaced session when it belonged to someone else.
// The principal's own challenge stays, with its cooldown and attempt budget.
func (c *Controller) dropPrevious(ctx context.Context, before, applied domain.State) {
	if before.PrincipalID != applied.PrincipalID {
		c.challenges.Discard(ctx, before.PrincipalID)
	}
}

// Logout clears the session, the persisted flag and the challenge, and asks the credential
// store to end the external session. Invalidation failures are logged, never returned.
func (c *Controller) Logout(ctx context.Context) {
	ctx, span := c.startSpan(ctx, "session.Logout")
	defer endSpan(span, nil)

	prev := c.clear(ctx, CauseLogout)
	if prev.PrincipalID == "" {
		return
	}
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := c.creds.Invalidate(cctx, prev.PrincipalID); err != nil {
		c.logger.WarnContext(ctx, "invalidate failed", "principal_id", prev.PrincipalID, "error", err)
	}
	c.audit.LogEvent(ctx, prev.PrincipalID, auditdomain.ActionLogout, "")
	c.emit(ctx, auditdomain.ActionLogout, prev, "", nil)
}

// Destination returns where the verified principal should be sent. ok is false before OTPVerified.
func (c *Controller) Destination() (routing.Destination, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Stage != domain.StageOTPVerified || c.state.Profile == nil {
		return "", false
	}
	return c.routes.RouteFor(c.state.Profile.Role), true
}

// issue sends a challenge for st and discards it again if st went stale meanwhile. With gated
// set it goes through the resend cooldown. Failures are logged and returned without touching
// the session.
func (c *Controller) issue(ctx context.Context, st domain.State, gated bool) (mfadomain.Challenge, error) {
	send := c.challenges.Issue
	if gated {
		send = c.challenges.Reissue
	}
	cctx, cancel := c.callCtx(ctx)
	ch, err := send(cctx, st.PrincipalID, st.Phone)
	cancel()
	if !c.current(st.Generation, st.PrincipalID) {
		if err == nil {
			c.challenges.Discard(ctx, st.PrincipalID)
		}
		return mfadomain.Challenge{}, autherr.ErrSessionExpired
	}
	if err != nil {
		err = classify(err)
		if autherr.ReasonOf(err) == autherr.ReasonResendNotYetAllowed {
			c.logger.InfoContext(ctx, "otp not reissued, resend cooldown running", "principal_id", st.PrincipalID)
			c.countFailure(ctx, "issue", err)
			return mfadomain.Challenge{}, err
		}
		c.logger.WarnContext(ctx, "otp delivery failed", "principal_id", st.PrincipalID, "temporary", temporary(err), "error", err)
		c.audit.LogEvent(ctx, st.PrincipalID, auditdomain.ActionOTPFailed, "delivery=failed")
		c.emit(ctx, EventOTPDeliveryFailed, st, autherr.ReasonOf(err), nil)
		c.countFailure(ctx, "issue", err)
		return mfadomain.Challenge{}, err
	}
	c.audit.LogEvent(ctx, st.PrincipalID, auditdomain.ActionOTPSent, "")
	c.emit(ctx, auditdomain.ActionOTPSent, st, "", nil)
	return ch, nil
}

// resolve fetches the profile under the call timeout. nil maps to ProfileMissing, or to
// NetworkError when the deadline ran out first.
func (c *Controller) resolve(ctx context.Context, principalID string) (*profiledomain.Profile, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	p := c.profiles.Resolve(cctx, principalID)
	if p != nil {
		return p, nil
	}
	if cctx.Err() != nil {
		return nil, autherr.Network(cctx.Err())
	}
	return nil, autherr.ErrProfileMissing
}

// persistVerified writes the flag for st, then withdraws it if a logout cleared st meanwhile.
func (c *Controller) persistVerified(ctx context.Context, st domain.State) {
	fctx, cancel := c.callCtx(ctx)
	err := c.flags.SetOTPVerified(fctx, st.PrincipalID)
	cancel()
	if err != nil {
		c.logger.WarnContext(ctx, "could not persist otp flag", "error", err)
		return
	}
	if !c.current(st.Generation, st.PrincipalID) {
		c.resetFlag(ctx)
	}
}

func (c *Controller) resetFlag(ctx context.Context) {
	fctx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := c.flags.SetOTPVerified(fctx, ""); err != nil {
		c.logger.WarnContext(ctx, "could not clear otp flag", "error", err)
	}
}

// invalidateStale ends an external session whose result arrived after the session was cleared.
func (c *Controller) invalidateStale(ctx context.Context, principalID string) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if err := c.creds.Invalidate(cctx, principalID); err != nil {
		c.logger.WarnContext(ctx, "invalidate of discarded login failed", "principal_id", principalID, "error", err)
	}
}

// clear resets the session to Unauthenticated, bumps the generation and drops the flag and
// challenge. Returns the state it replaced.
func (c *Controller) clear(ctx context.Context, cause Cause) domain.State {
	c.mu.Lock()
	prev := c.state
	c.state = domain.State{Generation: prev.Generation + 1}
	c.stage.Store(domain.StageUnauthenticated)
	next := c.state
	c.mu.Unlock()

	if prev.PrincipalID != "" {
		c.challenges.Discard(ctx, prev.PrincipalID)
	}
	c.resetFlag(ctx)
	if prev.Stage != domain.StageUnauthenticated {
		c.publish(ctx, prev, next, cause)
	}
	c.logger.InfoContext(ctx, "session cleared", "cause", string(cause), "principal_id", prev.PrincipalID)
	return prev
}

// replace installs next when the session still has generation gen and principalID.
// The generation is bumped so results computed for the replaced session become stale.
func (c *Controller) replace(gen uint64, principalID string, next domain.State) (domain.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Generation != gen || c.state.PrincipalID != principalID {
		return domain.State{}, false
	}
	next.Generation = gen + 1
	c.state = next
	c.stage.Store(next.Stage)
	return next, true
}

// current reports whether the session still has generation gen and principalID.
func (c *Controller) current(gen uint64, principalID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Generation == gen && c.state.PrincipalID == principalID
}

func (c *Controller) snapshotState() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// classify keeps taxonomy errors and turns everything else, including deadlines, into NetworkError.
func classify(err error) error {
	if err == nil || autherr.ReasonOf(err) != "" {
		return err
	}
	return autherr.Network(err)
}

// temporary reports whether the sender flagged err as worth retrying later.
// Unflagged failures count as temporary.
func temporary(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

func copyProfile(p *profiledomain.Profile) *profiledomain.Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
