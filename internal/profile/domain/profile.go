package domain

import "strings"

// RoleNone is the normalized role of a profile with an empty or missing role.
const RoleNone = "none"

// Record is a profile row as stored: the role exactly as entered by whoever maintains it.
type Record struct {
	PrincipalID string
	Role        string
	Phone       string
}

// Profile is the resolved profile cached on a session. Role is always normalized.
type Profile struct {
	PrincipalID string
	RawRole     string
	Role        string
	Phone       string
}

// NormalizeRole lower-cases and trims raw; empty becomes RoleNone. NormalizeRole(NormalizeRole(x)) == NormalizeRole(x).
func NormalizeRole(raw string) string {
	r := strings.TrimSpace(strings.ToLower(raw))
	if r == "" {
		return RoleNone
	}
	return r
}

// FromRecord builds the Profile for rec.
func FromRecord(rec *Record) *Profile {
	return &Profile{
		PrincipalID: rec.PrincipalID,
		RawRole:     rec.Role,
		Role:        NormalizeRole(rec.Role),
		Phone:       rec.Phone,
	}
}
