package localstate

import "context"

const (
	otpVerifiedPrefix  = "auth.otpVerified."
	sessionTokenPrefix = "auth.sessionToken."
)

// OTPVerifiedKey is the key of realm's OTP-verified flag.
func OTPVerifiedKey(realm string) string { return otpVerifiedPrefix + realm }

// SessionTokenKey is the key of realm's stored session token.
func SessionTokenKey(realm string) string { return sessionTokenPrefix + realm }

// Flags exposes the per-realm values of a Store. Last writer wins.
type Flags struct {
	store Store
	realm string
}

// NewFlags returns the flags of realm in store.
func NewFlags(store Store, realm string) *Flags {
	return &Flags{store: store, realm: realm}
}

// Realm returns the realm the flags belong to.
func (f *Flags) Realm() string { return f.realm }

// VerifiedPrincipal returns the principal whose code was last verified in the realm, or "".
func (f *Flags) VerifiedPrincipal(ctx context.Context) (string, error) {
	v, _, err := f.store.Get(ctx, OTPVerifiedKey(f.realm))
	if err != nil {
		return "", err
	}
	return v, nil
}

// OTPVerified reports whether the flag was set by principalID. A flag left by another
// principal reads false.
func (f *Flags) OTPVerified(ctx context.Context, principalID string) (bool, error) {
	if principalID == "" {
		return false, nil
	}
	v, err := f.VerifiedPrincipal(ctx)
	return err == nil && v == principalID, err
}

// SetOTPVerified records principalID as verified. An empty principalID clears the flag.
func (f *Flags) SetOTPVerified(ctx context.Context, principalID string) error {
	if principalID == "" {
		return f.store.Delete(ctx, OTPVerifiedKey(f.realm))
	}
	return f.store.Set(ctx, OTPVerifiedKey(f.realm), principalID)
}

// SessionToken returns the stored session token, or "" if none.
func (f *Flags) SessionToken(ctx context.Context) (string, error) {
	v, _, err := f.store.Get(ctx, SessionTokenKey(f.realm))
	return v, err
}

// SetSessionToken stores token, or removes it when token is empty.
func (f *Flags) SetSessionToken(ctx context.Context, token string) error {
	if token == "" {
		return f.store.Delete(ctx, SessionTokenKey(f.realm))
	}
	return f.store.Set(ctx, SessionTokenKey(f.realm), token)
}
