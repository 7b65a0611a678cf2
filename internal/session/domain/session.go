package domain

import "time"

// Session is a persisted external session opened by a successful credential check.
// Its signed token is what a later process presents to resume it.
type Session struct {
	ID         string
	UserID     string
	Realm      string
	ExpiresAt  time.Time
	RevokedAt  *time.Time // nil when not revoked
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

// Live reports whether the session is neither revoked nor past its expiry at now.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
