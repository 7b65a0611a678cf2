package cli

import (
	"context"
	"io"
	"sync"
	"time"

	auditdomain "backoffice/portal/internal/audit/domain"
	"backoffice/portal/internal/autherr"
	identityservice "backoffice/portal/internal/identity/service"
	mfadomain "backoffice/portal/internal/mfa/domain"
	profiledomain "backoffice/portal/internal/profile/domain"
	"backoffice/portal/internal/routing"
	"backoffice/portal/internal/session/domain"
	"backoffice/portal/internal/session/service"
)

// scriptPrompter answers prompts from a fixed script and then reports end of input.
type scriptPrompter struct {
	lines   []string
	secrets []string
	asked   []string
}

func (p *scriptPrompter) Line(prompt string) (string, error) {
	p.asked = append(p.asked, prompt)
	if len(p.lines) == 0 {
		return "", io.EOF
	}
	l := p.lines[0]
	p.lines = p.lines[1:]
	return l, nil
}

func (p *scriptPrompter) Secret(prompt string) (string, error) {
	p.asked = append(p.asked, prompt)
	if len(p.secrets) == 0 {
		return "", io.EOF
	}
	s := p.secrets[0]
	p.secrets = p.secrets[1:]
	return s, nil
}

func (p *scriptPrompter) Close() error { return nil }

// fakeController accepts "secret" as the password and "123456" as the code.
type fakeController struct {
	mu          sync.Mutex
	view        service.View
	loginErr    error
	otpSent     bool
	submitErrs  []error
	resendErr   error
	restoreErr  error
	restored    *domain.ExternalSession
	restoreTo   domain.Stage
	loggedOut   bool
	submitted   []string
	resends     int
	destination routing.Destination

	// restoreGated adopts the session but reports that a new code may not be sent yet.
	restoreGated bool
}

func newFakeController() *fakeController {
	return &fakeController{
		view:        service.View{Realm: routing.RealmGeneral},
		otpSent:     true,
		restoreTo:   domain.StageCredentialsVerified,
		destination: "/student",
	}
}

func (c *fakeController) Login(ctx context.Context, identifier, secret string) (*service.LoginResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loginErr != nil {
		return nil, c.loginErr
	}
	if secret != "secret" {
		return nil, autherr.ErrInvalidCredentials
	}
	c.view.Stage = domain.StageCredentialsVerified
	c.view.PrincipalID = "u1"
	c.view.Phone = "+15550001"
	return &service.LoginResult{PrincipalID: "u1", Phone: "+15550001", Token: "tok-u1", OTPSent: c.otpSent}, nil
}

func (c *fakeController) SubmitOTP(ctx context.Context, code string) (*profiledomain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, code)
	if len(c.submitErrs) > 0 {
		err := c.submitErrs[0]
		c.submitErrs = c.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if code != "123456" {
		return nil, autherr.InvalidCode(4)
	}
	c.view.Stage = domain.StageOTPVerified
	c.view.Destination = c.destination
	return &profiledomain.Profile{PrincipalID: "u1", Role: "student"}, nil
}

func (c *fakeController) Resend(ctx context.Context) (mfadomain.Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resends++
	if c.resendErr != nil {
		return mfadomain.Challenge{}, c.resendErr
	}
	return mfadomain.Challenge{PrincipalID: "u1", Phone: c.view.Phone}, nil
}

func (c *fakeController) Destination() (routing.Destination, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.Stage != domain.StageOTPVerified {
		return "", false
	}
	return c.destination, true
}

func (c *fakeController) Snapshot() service.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *fakeController) Restore(ctx context.Context, ext *domain.ExternalSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restored = ext
	if c.restoreErr != nil {
		return c.restoreErr
	}
	c.view.Stage = c.restoreTo
	c.view.PrincipalID = ext.PrincipalID
	c.view.Phone = ext.Phone
	if c.restoreTo == domain.StageOTPVerified {
		c.view.Destination = c.destination
	} else {
		c.view.Challenge = &service.ChallengeView{AttemptsRemaining: 5, ExpiresIn: 5 * time.Minute}
	}
	if c.restoreGated {
		c.view.Challenge = &service.ChallengeView{ResendIn: 30 * time.Second, Expired: true}
		return autherr.ErrResendNotYetAllowed
	}
	return nil
}

func (c *fakeController) Logout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	c.view = service.View{Realm: c.view.Realm}
}

type fakeTokens struct {
	token string
	// verifiedFor is the principal whose code was verified.
	verifiedFor string
	err         error
}

func (t *fakeTokens) SessionToken(ctx context.Context) (string, error) { return t.token, t.err }

func (t *fakeTokens) SetSessionToken(ctx context.Context, token string) error {
	t.token = token
	return nil
}

func (t *fakeTokens) OTPVerified(ctx context.Context, principalID string) (bool, error) {
	return principalID != "" && t.verifiedFor == principalID, nil
}

type fakeResumer struct {
	sessions    map[string]*domain.ExternalSession
	err         error
	invalidated []string
}

func (r *fakeResumer) Resume(ctx context.Context, token string) (*domain.ExternalSession, error) {
	if r.err != nil {
		return nil, r.err
	}
	ext, ok := r.sessions[token]
	if !ok {
		return nil, identityservice.ErrInvalidSession
	}
	return ext, nil
}

func (r *fakeResumer) Invalidate(ctx context.Context, principalID string) error {
	r.invalidated = append(r.invalidated, principalID)
	return nil
}

type fakeAudit struct {
	logs []*auditdomain.AuditLog
}

func (a *fakeAudit) ListByUser(ctx context.Context, userID string, limit int32) ([]*auditdomain.AuditLog, error) {
	var out []*auditdomain.AuditLog
	for _, l := range a.logs {
		if l.UserID == userID && int32(len(out)) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}
