package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	auditdomain "backoffice/portal/internal/audit/domain"
	"backoffice/portal/internal/autherr"
	identityservice "backoffice/portal/internal/identity/service"
	"backoffice/portal/internal/session/domain"
	"backoffice/portal/internal/session/service"
)

// Controller is the session controller as seen by the commands.
type Controller interface {
	Session
	Restore(ctx context.Context, ext *domain.ExternalSession) error
	Logout(ctx context.Context)
}

// TokenStore keeps the realm's session token and OTP flag between runs.
type TokenStore interface {
	SessionToken(ctx context.Context) (string, error)
	SetSessionToken(ctx context.Context, token string) error
	OTPVerified(ctx context.Context, principalID string) (bool, error)
}

// Resumer turns a stored token back into an external session.
type Resumer interface {
	Resume(ctx context.Context, token string) (*domain.ExternalSession, error)
	Invalidate(ctx context.Context, principalID string) error
}

// AuditLister reads a principal's audit trail.
type AuditLister interface {
	ListByUser(ctx context.Context, userID string, limit int32) ([]*auditdomain.AuditLog, error)
}

// Deps are the services behind the commands.
type Deps struct {
	Controller Controller
	Tokens     TokenStore
	Creds      Resumer
	Audit      AuditLister
	Prompt     Prompter
	Out        io.Writer
	Quiet      bool
	PeekCode   func(ctx context.Context, phone string) (string, bool)
}

func (d *Deps) flow() *Flow {
	return &Flow{
		Session:   d.Controller,
		Prompt:    d.Prompt,
		Out:       d.Out,
		Quiet:     d.Quiet,
		SaveToken: d.Tokens.SetSessionToken,
		PeekCode:  d.PeekCode,
	}
}

// resume loads the stored token and resumes its session. A token the credential store rejects is
// forgotten and reported as ErrNotSignedIn.
func (d *Deps) resume(ctx context.Context) (*domain.ExternalSession, error) {
	token, err := d.Tokens.SessionToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotSignedIn
	}
	ext, err := d.Creds.Resume(ctx, token)
	if errors.Is(err, identityservice.ErrInvalidSession) {
		_ = d.Tokens.SetSessionToken(ctx, "")
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, autherr.Network(err)
	}
	return ext, nil
}

// Login signs in with identifier (prompted when empty) and verifies the code.
func (d *Deps) Login(ctx context.Context, identifier string) error {
	return d.flow().Login(ctx, identifier)
}

// Verify resumes the stored session and, unless it is already verified, prompts for the pending
// code or a newly sent one.
func (d *Deps) Verify(ctx context.Context) error {
	ext, err := d.resume(ctx)
	if err != nil {
		return err
	}
	err = withSpinner(d.Out, d.Quiet, "Restoring session...", func() error {
		return d.Controller.Restore(ctx, ext)
	})
	gated := autherr.ReasonOf(err) == autherr.ReasonResendNotYetAllowed
	if err != nil && !gated {
		return err
	}
	f := d.flow()
	if v := d.Controller.Snapshot(); v.Stage == domain.StageCredentialsVerified {
		switch {
		case gated:
			wait := ""
			if v.Challenge != nil {
				wait = " (" + formatDuration(v.Challenge.ResendIn) + ")"
			}
			printf(d.Out, "%s %s%s; type %s once it is allowed\n", text.FgYellow.Sprint("!"), messageOf(err), wait, resendCommand)
		case v.Challenge != nil:
			f.announceCode(ctx, v.Phone)
		default:
			printf(d.Out, "%s the verification code could not be sent; type %s to try again\n", text.FgYellow.Sprint("!"), resendCommand)
		}
	}
	return f.Verify(ctx)
}

// Status prints the stored session. Only a session whose code was already verified is restored,
// so asking for the status never sends a code.
func (d *Deps) Status(ctx context.Context) error {
	ext, err := d.resume(ctx)
	if err != nil {
		if errors.Is(err, ErrNotSignedIn) {
			RenderView(d.Out, d.Controller.Snapshot())
		}
		return err
	}
	verified, err := d.Tokens.OTPVerified(ctx, ext.PrincipalID)
	if err != nil {
		return err
	}
	if verified {
		if err := d.Controller.Restore(ctx, ext); err != nil {
			return err
		}
		RenderView(d.Out, d.Controller.Snapshot())
		return nil
	}
	v := d.Controller.Snapshot()
	v.Stage = domain.StageCredentialsVerified
	v.PrincipalID = ext.PrincipalID
	v.Phone = ext.Phone
	v.SessionID = ext.SessionID
	RenderView(d.Out, v)
	printf(d.Out, "Run %s to finish signing in.\n", text.Bold.Sprint("portal verify"))
	return nil
}

// Logout ends the stored session, if any, and forgets the token and the OTP flag. The local state
// is cleared even when the server could not be reached.
func (d *Deps) Logout(ctx context.Context) error {
	ext, err := d.resume(ctx)
	if err != nil && !errors.Is(err, ErrNotSignedIn) {
		printf(d.Out, "%s could not reach the server: %s\n", text.FgYellow.Sprint("!"), messageOf(err))
	}
	if ext != nil {
		if ierr := d.Creds.Invalidate(ctx, ext.PrincipalID); ierr != nil {
			printf(d.Out, "%s could not end the session on the server: %v\n", text.FgYellow.Sprint("!"), ierr)
		}
	}
	d.Controller.Logout(ctx)
	if err := d.Tokens.SetSessionToken(ctx, ""); err != nil {
		return err
	}
	printf(d.Out, "%s signed out\n", text.FgGreen.Sprint("✓"))
	return nil
}

// History prints the most recent audit entries of the stored session's principal.
func (d *Deps) History(ctx context.Context, limit int32) error {
	ext, err := d.resume(ctx)
	if err != nil {
		return err
	}
	logs, err := d.Audit.ListByUser(ctx, ext.PrincipalID, limit)
	if err != nil {
		return autherr.Network(err)
	}
	t := table.NewWriter()
	t.SetOutputMirror(d.Out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"When", "Realm", "Action", "Source", "Details"})
	for _, l := range logs {
		t.AppendRow(table.Row{l.CreatedAt.Local().Format(time.DateTime), l.Realm, l.Action, l.Source, l.Metadata})
	}
	if len(logs) == 0 {
		t.AppendRow(table.Row{"", "", text.FgHiBlack.Sprint("no entries"), "", ""})
	}
	t.Render()
	return nil
}

var _ Controller = (*service.Controller)(nil)
