// Package devotp captures plain OTPs in memory instead of texting them, used only when OTP_RETURN_TO_CLIENT
// is enabled outside production (the CLI prints the code so a developer can finish sign-in).
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain OTP by phone for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores otp for phone until expiresAt.
	Put(ctx context.Context, phone, otp string, expiresAt time.Time)
	// Get returns the otp for phone if present and not expired. Returns ok false if missing or expired.
	Get(ctx context.Context, phone string) (otp string, ok bool)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores otp for phone until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, phone, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[phone] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for phone if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, phone string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[phone]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, phone)
		s.mu.Unlock()
		return "", false
	}
	return e.otp, true
}

// Sender is an OTP sender that records codes in a Store rather than sending SMS.
type Sender struct {
	store Store
	ttl   time.Duration
	nowF  func() time.Time
}

// NewSender returns a Sender that keeps each code for ttl.
func NewSender(store Store, ttl time.Duration) *Sender {
	return &Sender{store: store, ttl: ttl, nowF: func() time.Time { return time.Now().UTC() }}
}

// SendOTP records otp for phone. It never fails.
func (s *Sender) SendOTP(ctx context.Context, phone, otp string) error {
	s.store.Put(ctx, phone, otp, s.nowF().Add(s.ttl))
	return nil
}

// LastCode returns the most recent live code recorded for phone.
func (s *Sender) LastCode(ctx context.Context, phone string) (string, bool) {
	return s.store.Get(ctx, phone)
}
