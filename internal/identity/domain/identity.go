package domain

import "time"

// Identity is a user's sign-in method. The portal only signs in with local (password) identities.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string
	PasswordHash string // empty if not local
	CreatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal IdentityProvider = "local"
	IdentityProviderOIDC  IdentityProvider = "oidc"
)

// Credentials is the result of a successful identifier/password check: the principal, the raw
// phone number OTPs go to, and the external session that was opened for it.
type Credentials struct {
	PrincipalID string
	Phone       string
	SessionID   string
	Token       string
	ExpiresAt   time.Time
}
