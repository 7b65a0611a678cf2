// Package codestore keeps the hash of the last OTP delivered to each principal until it expires.
package codestore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBackend is wrapped around storage failures so callers can tell them apart from a missing code.
var ErrBackend = errors.New("otp code store unavailable")

// Store holds one code hash per principal.
type Store interface {
	// Put replaces the principal's code hash; it disappears after ttl.
	Put(ctx context.Context, principalID, hash string, ttl time.Duration) error
	// Get returns the hash if present and not expired. ok is false when missing.
	Get(ctx context.Context, principalID string) (hash string, ok bool, err error)
	// Delete removes the principal's code, if any.
	Delete(ctx context.Context, principalID string) error
}

type entry struct {
	hash      string
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Suitable for a single CLI process or tests.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Put(ctx context.Context, principalID, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[principalID] = entry{hash: hash, expiresAt: s.nowF().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, principalID string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.m[principalID]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, principalID)
		s.mu.Unlock()
		return "", false, nil
	}
	return e.hash, true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, principalID)
	return nil
}
