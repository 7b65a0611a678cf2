package service

import (
	"time"

	profiledomain "backoffice/portal/internal/profile/domain"
	"backoffice/portal/internal/routing"
	"backoffice/portal/internal/session/domain"
)

// ChallengeView is a display copy of the current OTP challenge. The durations are derived
// from the challenge timestamps at the moment of the snapshot.
type ChallengeView struct {
	AttemptsRemaining int
	ExpiresAt         time.Time
	ExpiresIn         time.Duration
	ResendIn          time.Duration
	Expired           bool
	Verified          bool
}

// View is a consistent copy of the session for display.
type View struct {
	Realm       routing.Realm
	Stage       domain.Stage
	PrincipalID string
	Phone       string
	SessionID   string
	Profile     *profiledomain.Profile
	// Destination is set once the session is OTPVerified.
	Destination routing.Destination
	Challenge   *ChallengeView
}

// Snapshot returns the current session. Safe to call concurrently with any operation.
func (c *Controller) Snapshot() View {
	st := c.snapshotState()
	v := View{
		Realm:       c.realm,
		Stage:       st.Stage,
		PrincipalID: st.PrincipalID,
		Phone:       st.Phone,
		SessionID:   st.SessionID,
		Profile:     copyProfile(st.Profile),
	}
	if st.Stage == domain.StageOTPVerified && st.Profile != nil {
		v.Destination = c.routes.RouteFor(st.Profile.Role)
	}
	if st.Stage == domain.StageCredentialsVerified {
		if ch, ok := c.challenges.Get(st.PrincipalID); ok {
			now := c.challenges.Now()
			v.Challenge = &ChallengeView{
				AttemptsRemaining: ch.AttemptsRemaining,
				ExpiresAt:         ch.ExpiresAt,
				ExpiresIn:         ch.Remaining(now),
				ResendIn:          ch.ResendIn(now),
				Expired:           ch.Expired(now),
				Verified:          ch.Verified,
			}
		}
	}
	return v
}
