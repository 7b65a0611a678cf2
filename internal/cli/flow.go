package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"

	"backoffice/portal/internal/autherr"
	mfadomain "backoffice/portal/internal/mfa/domain"
	profiledomain "backoffice/portal/internal/profile/domain"
	"backoffice/portal/internal/routing"
	"backoffice/portal/internal/session/service"
)

// Commands typed at the code prompt instead of a code.
const (
	resendCommand = ":resend"
	quitCommand   = ":quit"
)

// Session is the part of the session controller the interactive flow drives.
type Session interface {
	Login(ctx context.Context, identifier, secret string) (*service.LoginResult, error)
	SubmitOTP(ctx context.Context, code string) (*profiledomain.Profile, error)
	Resend(ctx context.Context) (mfadomain.Challenge, error)
	Destination() (routing.Destination, bool)
	Snapshot() service.View
}

// Flow walks a user through sign-in on a terminal.
type Flow struct {
	Session Session
	Prompt  Prompter
	Out     io.Writer
	Quiet   bool
	// SaveToken persists the session token after a successful Login. Optional.
	SaveToken func(ctx context.Context, token string) error
	// PeekCode returns the last code sent to phone when codes are shown locally. Optional.
	PeekCode func(ctx context.Context, phone string) (string, bool)
}

// Login asks for any missing credentials, signs in and then runs the code prompt.
func (f *Flow) Login(ctx context.Context, identifier string) error {
	var err error
	if identifier == "" {
		identifier, err = f.Prompt.Line("Identifier: ")
		if err != nil {
			return endOfInput(err)
		}
	}
	secret, err := f.Prompt.Secret("Password: ")
	if err != nil {
		return endOfInput(err)
	}

	var res *service.LoginResult
	err = withSpinner(f.Out, f.Quiet, "Checking credentials...", func() error {
		var lerr error
		res, lerr = f.Session.Login(ctx, identifier, secret)
		return lerr
	})
	if err != nil {
		return err
	}
	if f.SaveToken != nil && res.Token != "" {
		if serr := f.SaveToken(ctx, res.Token); serr != nil {
			printf(f.Out, "%s could not store the session: %v\n", text.FgYellow.Sprint("!"), serr)
		}
	}
	if res.OTPSent {
		f.announceCode(ctx, res.Phone)
	} else {
		printf(f.Out, "%s the verification code could not be sent; type %s to try again\n", text.FgYellow.Sprint("!"), resendCommand)
	}
	return f.Verify(ctx)
}

// Verify prompts for codes until the session is verified, the attempts run out or the user quits.
// Typing :resend requests a new code.
func (f *Flow) Verify(ctx context.Context) error {
	if dest, ok := f.Session.Destination(); ok {
		f.signedIn(dest)
		return nil
	}
	for {
		line, err := f.Prompt.Line("Verification code: ")
		if err != nil {
			return endOfInput(err)
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case quitCommand:
			return ErrAborted
		case resendCommand:
			if err := f.resend(ctx); err != nil {
				return err
			}
			continue
		}

		err = withSpinner(f.Out, f.Quiet, "Verifying code...", func() error {
			_, serr := f.Session.SubmitOTP(ctx, line)
			return serr
		})
		if err == nil {
			dest, _ := f.Session.Destination()
			f.signedIn(dest)
			return nil
		}
		switch autherr.ReasonOf(err) {
		case autherr.ReasonInvalidCode:
			var ae *autherr.Error
			errors.As(err, &ae)
			printf(f.Out, "%s invalid code, %d attempts left\n", text.FgRed.Sprint("✗"), ae.Remaining)
		case autherr.ReasonExpired:
			printf(f.Out, "%s the code has expired; type %s for a new one\n", text.FgRed.Sprint("✗"), resendCommand)
		case autherr.ReasonNetwork, autherr.ReasonProfileMissing:
			printf(f.Out, "%s %s\n", text.FgRed.Sprint("✗"), messageOf(err))
		default:
			return err
		}
	}
}

// resend requests a new code. Refusals are reported and the prompt continues; a lost session ends it.
func (f *Flow) resend(ctx context.Context) error {
	var ch mfadomain.Challenge
	err := withSpinner(f.Out, f.Quiet, "Sending a new code...", func() error {
		var rerr error
		ch, rerr = f.Session.Resend(ctx)
		return rerr
	})
	switch {
	case err == nil:
		f.announceCode(ctx, ch.Phone)
		return nil
	case autherr.ReasonOf(err) == autherr.ReasonResendNotYetAllowed:
		wait := ""
		if c := f.Session.Snapshot().Challenge; c != nil {
			wait = " (" + formatDuration(c.ResendIn) + ")"
		}
		printf(f.Out, "%s %s%s\n", text.FgYellow.Sprint("!"), messageOf(err), wait)
		return nil
	case autherr.ReasonOf(err) == autherr.ReasonNetwork:
		printf(f.Out, "%s %s\n", text.FgRed.Sprint("✗"), messageOf(err))
		return nil
	default:
		return err
	}
}

func (f *Flow) announceCode(ctx context.Context, phone string) {
	printf(f.Out, "A verification code was sent to %s. Type %s for a new one or %s to stop.\n", phone, resendCommand, quitCommand)
	if f.PeekCode == nil {
		return
	}
	if code, ok := f.PeekCode(ctx, phone); ok {
		printf(f.Out, "%s code: %s\n", text.FgHiBlack.Sprint("[dev]"), code)
	}
}

func (f *Flow) signedIn(dest routing.Destination) {
	printf(f.Out, "%s signed in, continue at %s\n", text.FgGreen.Sprint("✓"), text.Bold.Sprint(string(dest)))
}

// messageOf returns the user-facing message of a taxonomy error, or err's text.
func messageOf(err error) string {
	var ae *autherr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}

func endOfInput(err error) error {
	if isEndOfInput(err) {
		return ErrAborted
	}
	return err
}
