package domain

import (
	"errors"
	"strings"
	"time"
)

// User is a back-office account. Phone is the raw contact number OTP codes are sent to.
type User struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// NormalizeEmail lower-cases and trims an identifier the way emails are stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// Active reports whether the user may sign in.
func (u *User) Active() bool {
	return u.Status == UserStatusActive
}
