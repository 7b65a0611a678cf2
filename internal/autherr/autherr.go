// Package autherr defines the error taxonomy shared by the two-factor session controller.
// Every error carries a stable Reason for callers and tests plus a short human message.
package autherr

import (
	"errors"
	"fmt"
)

// Reason is the stable, machine-readable code of an authentication failure.
type Reason string

const (
	ReasonInvalidCredentials  Reason = "invalid_credentials"
	ReasonNetwork             Reason = "network_error"
	ReasonProfileMissing      Reason = "profile_missing"
	ReasonSessionExpired      Reason = "session_expired"
	ReasonInvalidCode         Reason = "invalid_code"
	ReasonExpired             Reason = "expired"
	ReasonAttemptsExhausted   Reason = "attempts_exhausted"
	ReasonResendNotYetAllowed Reason = "resend_not_yet_allowed"
)

// Error is an authentication failure. Two Errors match under errors.Is when their reasons match.
type Error struct {
	Reason  Reason
	Message string
	// Remaining is the number of verification attempts left; only meaningful for ReasonInvalidCode.
	Remaining int
	// Err is the underlying cause, if any (e.g. a transport error behind ReasonNetwork).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Sentinels for errors.Is. Do not mutate.
var (
	ErrInvalidCredentials  = &Error{Reason: ReasonInvalidCredentials, Message: "invalid identifier or password"}
	ErrNetwork             = &Error{Reason: ReasonNetwork, Message: "service temporarily unavailable, try again"}
	ErrProfileMissing      = &Error{Reason: ReasonProfileMissing, Message: "no profile found for this account, contact an administrator"}
	ErrSessionExpired      = &Error{Reason: ReasonSessionExpired, Message: "session expired, sign in again"}
	ErrInvalidCode         = &Error{Reason: ReasonInvalidCode, Message: "invalid verification code"}
	ErrExpired             = &Error{Reason: ReasonExpired, Message: "verification code expired, request a new one"}
	ErrAttemptsExhausted   = &Error{Reason: ReasonAttemptsExhausted, Message: "too many invalid codes, request a new one"}
	ErrResendNotYetAllowed = &Error{Reason: ReasonResendNotYetAllowed, Message: "please wait before requesting a new code"}
)

// InvalidCode returns an ErrInvalidCode variant carrying the remaining attempt count.
func InvalidCode(remaining int) *Error {
	return &Error{
		Reason:    ReasonInvalidCode,
		Message:   fmt.Sprintf("invalid verification code, %d attempts remaining", remaining),
		Remaining: remaining,
	}
}

// Network wraps a transport failure as a retryable ReasonNetwork error.
// A nil cause yields the bare sentinel; an error that already carries a reason is returned unchanged.
func Network(cause error) error {
	if cause == nil {
		return ErrNetwork
	}
	var ae *Error
	if errors.As(cause, &ae) {
		return cause
	}
	return &Error{Reason: ReasonNetwork, Message: ErrNetwork.Message, Err: cause}
}

// ReasonOf returns the reason carried by err, or "" if err is nil or not an *Error.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// Retryable reports whether the caller may retry the same call unchanged.
func Retryable(err error) bool {
	return ReasonOf(err) == ReasonNetwork
}
