package domain

import "time"

// Challenge is the live record of one outstanding OTP verification cycle for a principal.
type Challenge struct {
	ID                string    `json:"id"`
	PrincipalID       string    `json:"principal_id"`
	Phone             string    `json:"phone"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	Verified          bool      `json:"verified,omitempty"`
}

// Expired reports whether now is past ExpiresAt. ExpiresAt itself is still valid.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Exhausted reports whether no verification attempts remain.
func (c *Challenge) Exhausted() bool {
	return c.AttemptsRemaining <= 0
}

// Live reports whether the challenge can still accept a verify call.
func (c *Challenge) Live(now time.Time) bool {
	return !c.Verified && !c.Expired(now) && !c.Exhausted()
}

// Remaining returns the time left before expiry, clamped at zero. For display only.
func (c *Challenge) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ResendIn returns the time left before a resend is allowed, clamped at zero.
func (c *Challenge) ResendIn(now time.Time) time.Duration {
	d := c.ResendAvailableAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
