package cli

import (
	"errors"

	"backoffice/portal/internal/autherr"
)

// Exit codes of the portal binary.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (bad flags, unreachable services).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates there is no usable session; sign in again.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates credentials or codes were rejected.
	ExitCodeAuthFailed = 3
)

// ErrNotSignedIn is returned by commands that need a stored session when there is none.
var ErrNotSignedIn = errors.New("not signed in, run: portal login")

// ErrAborted is returned when the user leaves a prompt without finishing.
var ErrAborted = errors.New("aborted")

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if errors.Is(err, ErrNotSignedIn) {
		return ExitCodeAuthRequired
	}
	switch autherr.ReasonOf(err) {
	case autherr.ReasonSessionExpired:
		return ExitCodeAuthRequired
	case autherr.ReasonInvalidCredentials, autherr.ReasonInvalidCode, autherr.ReasonExpired,
		autherr.ReasonAttemptsExhausted, autherr.ReasonProfileMissing:
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}
