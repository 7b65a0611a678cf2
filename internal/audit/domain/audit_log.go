package domain

import "time"

// Auth event actions recorded in the audit trail.
const (
	ActionLoginSuccess = "login_success"
	ActionLoginFailure = "login_failure"
	ActionOTPSent      = "otp_sent"
	ActionOTPFailed    = "otp_failed"
	ActionOTPVerified  = "otp_verified"
	ActionLogout       = "logout"
	ActionSignedOut    = "signed_out"
)

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	Realm     string
	UserID    string
	Action    string
	Source    string
	Metadata  string
	CreatedAt time.Time
}
