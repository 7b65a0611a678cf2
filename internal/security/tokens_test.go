package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidateSession(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, exp, err := p.IssueSession("s1", "u1", "admin")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if token == "" {
		t.Fatal("token empty")
	}
	if !exp.After(time.Now()) {
		t.Fatal("expires at in the past")
	}
	claims, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if claims.SessionID != "s1" || claims.Subject != "u1" || claims.Realm != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenProvider_ValidateSessionInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.ValidateSession("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateSession invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateSessionExpired(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	issued := time.Now().UTC().Add(-24 * time.Hour)
	p.nowF = func() time.Time { return issued }
	token, _, err := p.IssueSession("s1", "u1", "general")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	p.nowF = func() time.Time { return time.Now().UTC() }
	if _, err := p.ValidateSession(token); err != ErrInvalidToken {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateSessionWrongAudience(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.IssueSession("s1", "u1", "general")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	other := NewTokenProvider(p.privateKey, p.publicKey, p.issuer, "other-audience", time.Hour)
	if _, err := other.ValidateSession(token); err != ErrInvalidToken {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}
}
