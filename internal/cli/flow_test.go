package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/portal/internal/autherr"
	"backoffice/portal/internal/session/domain"
)

func newTestFlow(ctl *fakeController, p *scriptPrompter) (*Flow, *bytes.Buffer, *fakeTokens) {
	out := &bytes.Buffer{}
	tokens := &fakeTokens{}
	return &Flow{
		Session:   ctl,
		Prompt:    p,
		Out:       out,
		Quiet:     true,
		SaveToken: tokens.SetSessionToken,
	}, out, tokens
}

func TestFlowLogin_Success(t *testing.T) {
	ctl := newFakeController()
	p := &scriptPrompter{lines: []string{"ada@example.com", "123456"}, secrets: []string{"secret"}}
	f, out, tokens := newTestFlow(ctl, p)

	require.NoError(t, f.Login(context.Background(), ""))
	assert.Equal(t, "tok-u1", tokens.token)
	assert.Equal(t, []string{"Identifier: ", "Password: ", "Verification code: "}, p.asked)
	assert.Contains(t, out.String(), "sent to +15550001")
	assert.Contains(t, out.String(), "/student")
}

func TestFlowLogin_IdentifierFromFlagSkipsPrompt(t *testing.T) {
	ctl := newFakeController()
	p := &scriptPrompter{lines: []string{"123456"}, secrets: []string{"secret"}}
	f, _, _ := newTestFlow(ctl, p)

	require.NoError(t, f.Login(context.Background(), "ada@example.com"))
	assert.Equal(t, "Password: ", p.asked[0])
}

func TestFlowLogin_InvalidCredentials(t *testing.T) {
	ctl := newFakeController()
	p := &scriptPrompter{secrets: []string{"wrong"}}
	f, _, tokens := newTestFlow(ctl, p)

	err := f.Login(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	assert.Empty(t, tokens.token)
	assert.Equal(t, ExitCodeAuthFailed, ExitCode(err))
}

func TestFlowLogin_DeliveryFailureOffersResend(t *testing.T) {
	ctl := newFakeController()
	ctl.otpSent = false
	p := &scriptPrompter{lines: []string{":resend", "123456"}, secrets: []string{"secret"}}
	f, out, _ := newTestFlow(ctl, p)

	require.NoError(t, f.Login(context.Background(), "ada@example.com"))
	assert.Contains(t, out.String(), "could not be sent")
	assert.Equal(t, 1, ctl.resends)
}

func TestFlowLogin_PeekCodeShown(t *testing.T) {
	ctl := newFakeController()
	p := &scriptPrompter{lines: []string{"123456"}, secrets: []string{"secret"}}
	f, out, _ := newTestFlow(ctl, p)
	f.PeekCode = func(ctx context.Context, phone string) (string, bool) { return "654321", phone == "+15550001" }

	require.NoError(t, f.Login(context.Background(), "ada@example.com"))
	assert.Contains(t, out.String(), "654321")
}

func TestFlowVerify_WrongCodeThenRight(t *testing.T) {
	ctl := newFakeController()
	ctl.view.Stage = domain.StageCredentialsVerified
	p := &scriptPrompter{lines: []string{"", "000000", "123456"}}
	f, out, _ := newTestFlow(ctl, p)

	require.NoError(t, f.Verify(context.Background()))
	assert.Equal(t, []string{"000000", "123456"}, ctl.submitted)
	assert.Contains(t, out.String(), "4 attempts left")
}

func TestFlowVerify_ExhaustedEndsPrompt(t *testing.T) {
	ctl := newFakeController()
	ctl.submitErrs = []error{autherr.ErrAttemptsExhausted}
	p := &scriptPrompter{lines: []string{"000000", "123456"}}
	f, _, _ := newTestFlow(ctl, p)

	err := f.Verify(context.Background())
	assert.ErrorIs(t, err, autherr.ErrAttemptsExhausted)
	assert.Len(t, ctl.submitted, 1)
}

func TestFlowVerify_ExpiredAndNetworkKeepPrompting(t *testing.T) {
	ctl := newFakeController()
	ctl.submitErrs = []error{autherr.ErrExpired, autherr.Network(errors.New("timeout")), nil}
	p := &scriptPrompter{lines: []string{"111111", "222222", "123456"}}
	f, out, _ := newTestFlow(ctl, p)

	require.NoError(t, f.Verify(context.Background()))
	assert.Contains(t, out.String(), "expired")
	assert.Contains(t, out.String(), autherr.ErrNetwork.Message)
}

func TestFlowVerify_ResendCooldownReported(t *testing.T) {
	ctl := newFakeController()
	ctl.resendErr = autherr.ErrResendNotYetAllowed
	p := &scriptPrompter{lines: []string{":resend", ":quit"}}
	f, out, _ := newTestFlow(ctl, p)

	err := f.Verify(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, out.String(), autherr.ErrResendNotYetAllowed.Message)
}

func TestFlowVerify_SessionExpiredOnResendEnds(t *testing.T) {
	ctl := newFakeController()
	ctl.resendErr = autherr.ErrSessionExpired
	p := &scriptPrompter{lines: []string{":resend", "123456"}}
	f, _, _ := newTestFlow(ctl, p)

	err := f.Verify(context.Background())
	assert.ErrorIs(t, err, autherr.ErrSessionExpired)
	assert.Empty(t, ctl.submitted)
}

func TestFlowVerify_EndOfInputAborts(t *testing.T) {
	f, _, _ := newTestFlow(newFakeController(), &scriptPrompter{})
	assert.ErrorIs(t, f.Verify(context.Background()), ErrAborted)
}

func TestFlowVerify_AlreadyVerified(t *testing.T) {
	ctl := newFakeController()
	ctl.view.Stage = domain.StageOTPVerified
	p := &scriptPrompter{}
	f, out, _ := newTestFlow(ctl, p)

	require.NoError(t, f.Verify(context.Background()))
	assert.Empty(t, p.asked)
	assert.Contains(t, out.String(), "/student")
}
