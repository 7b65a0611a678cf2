package domain

import (
	"sync/atomic"

	profiledomain "backoffice/portal/internal/profile/domain"
)

// Stage is the position of a portal session in the two-factor flow.
type Stage int32

const (
	StageUnauthenticated Stage = iota
	StageCredentialsVerified
	StageOTPVerified
)

func (s Stage) String() string {
	switch s {
	case StageUnauthenticated:
		return "unauthenticated"
	case StageCredentialsVerified:
		return "credentials_verified"
	case StageOTPVerified:
		return "otp_verified"
	default:
		return "unknown"
	}
}

// AtomicStage is a Stage readable without locks.
type AtomicStage struct {
	v atomic.Int32
}

func (a *AtomicStage) Load() Stage   { return Stage(a.v.Load()) }
func (a *AtomicStage) Store(s Stage) { a.v.Store(int32(s)) }

// State is the in-memory session owned by the controller. Profile is nil until OTP verification.
type State struct {
	PrincipalID string
	Stage       Stage
	Phone       string
	SessionID   string
	Profile     *profiledomain.Profile
	// Generation increases on every clear so in-flight results for an older session can be discarded.
	Generation uint64
}

// ExternalSession is a session known to the credential store, e.g. one resumed from a stored token.
type ExternalSession struct {
	PrincipalID string
	Phone       string
	SessionID   string
}

// EventKind names an asynchronous change reported by the credential store.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventSignedOut      EventKind = "signed_out"
)

// Event is an external session event. Session is nil for EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *ExternalSession
}
