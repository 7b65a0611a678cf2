package mfa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"backoffice/portal/internal/autherr"
	"backoffice/portal/internal/mfa/domain"
)

// ErrDeliveryFailed is returned by Issue and Reissue when the channel could not deliver the code.
var ErrDeliveryFailed = errors.New("otp delivery failed")

// Channel delivers codes out-of-band and checks submitted codes.
type Channel interface {
	Deliver(ctx context.Context, principalID, phone string) error
	Verify(ctx context.Context, principalID, code string) (bool, error)
}

// Policy holds the timing and attempt parameters of a challenge.
type Policy struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
}

// DefaultPolicy returns the production defaults: 300s expiry, 60s resend cooldown, 5 attempts.
func DefaultPolicy() Policy {
	return Policy{
		TTL:            300 * time.Second,
		ResendCooldown: 60 * time.Second,
		MaxAttempts:    5,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.TTL <= 0 {
		p.TTL = d.TTL
	}
	if p.ResendCooldown <= 0 {
		p.ResendCooldown = d.ResendCooldown
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Holder is implemented by channels that can tell whether a delivered code is still outstanding.
type Holder interface {
	Holds(ctx context.Context, principalID string) (bool, error)
}

// ChallengeManager owns the lifecycle of OTP challenges: at most one per principal.
// Expired and exhausted challenges are kept as retired records so repeated verify calls keep
// reporting the same reason until a new challenge is issued. With Records configured every
// record is written through, and a process that has none in memory picks up the stored one.
type ChallengeManager struct {
	mu      sync.Mutex
	channel Channel
	records Records
	policy  Policy
	nowF    func() time.Time
	byUser  map[string]*domain.Challenge
}

// ManagerOption configures a ChallengeManager.
type ManagerOption func(*ChallengeManager)

// WithRecords persists challenge records in r.
func WithRecords(r Records) ManagerOption {
	return func(m *ChallengeManager) { m.records = r }
}

// NewChallengeManager returns a manager delivering through channel. Zero policy fields take defaults.
func NewChallengeManager(channel Channel, policy Policy, opts ...ManagerOption) *ChallengeManager {
	m := &ChallengeManager{
		channel: channel,
		policy:  policy.withDefaults(),
		nowF:    func() time.Time { return time.Now().UTC() },
		byUser:  make(map[string]*domain.Challenge),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetClock replaces the time source. Intended for tests and simulations.
func (m *ChallengeManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowF = now
}

// Policy returns the effective policy.
func (m *ChallengeManager) Policy() Policy {
	return m.policy
}

// Issue delivers a fresh code to phone and records a new challenge, discarding any previous one.
// It is not gated; Reissue is.
func (m *ChallengeManager) Issue(ctx context.Context, principalID, phone string) (domain.Challenge, error) {
	if principalID == "" {
		return domain.Challenge{}, autherr.ErrSessionExpired
	}
	// The channel replaces its stored code on delivery, so the old challenge is unusable from here on.
	m.Discard(ctx, principalID)
	if err := m.channel.Deliver(ctx, principalID, phone); err != nil {
		return domain.Challenge{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	m.mu.Lock()
	now := m.nowF()
	c := &domain.Challenge{
		ID:                uuid.New().String(),
		PrincipalID:       principalID,
		Phone:             phone,
		IssuedAt:          now,
		ExpiresAt:         now.Add(m.policy.TTL),
		ResendAvailableAt: now.Add(m.policy.ResendCooldown),
		AttemptsRemaining: m.policy.MaxAttempts,
	}
	m.byUser[principalID] = c
	out := *c
	m.mu.Unlock()
	// The code is out; a failed write only loses the record for other processes.
	_ = m.save(ctx, out)
	return out, nil
}

// Reissue is Issue gated by the resend cooldown of the current challenge, live or retired.
// With no challenge on record it behaves exactly like Issue.
func (m *ChallengeManager) Reissue(ctx context.Context, principalID, phone string) (domain.Challenge, error) {
	if _, err := m.lookup(ctx, principalID); err != nil {
		return domain.Challenge{}, autherr.Network(err)
	}
	m.mu.Lock()
	c, ok := m.byUser[principalID]
	if ok && !c.Verified && m.nowF().Before(c.ResendAvailableAt) {
		m.mu.Unlock()
		return domain.Challenge{}, autherr.ErrResendNotYetAllowed
	}
	m.mu.Unlock()
	return m.Issue(ctx, principalID, phone)
}

// Verify checks code against the principal's challenge. The attempt budget and expiry are enforced
// here; the code comparison itself is delegated to the channel. An attempt is taken from the budget
// (and persisted) before the channel sees the code, and given back on a match or a channel failure,
// so concurrent calls can never check more codes than the budget allows.
func (m *ChallengeManager) Verify(ctx context.Context, principalID, code string) error {
	if _, err := m.lookup(ctx, principalID); err != nil {
		return autherr.Network(err)
	}
	m.mu.Lock()
	c, ok := m.byUser[principalID]
	if !ok {
		m.mu.Unlock()
		return autherr.ErrSessionExpired
	}
	if c.Verified {
		m.mu.Unlock()
		return nil
	}
	if c.Expired(m.nowF()) {
		m.mu.Unlock()
		return autherr.ErrExpired
	}
	if c.Exhausted() {
		m.mu.Unlock()
		return autherr.ErrAttemptsExhausted
	}
	c.AttemptsRemaining--
	id := c.ID
	reserved := *c
	m.mu.Unlock()

	if err := m.save(ctx, reserved); err != nil {
		m.settle(ctx, principalID, id, false)
		return autherr.Network(err)
	}

	match, err := m.channel.Verify(ctx, principalID, code)
	if err != nil {
		m.settle(ctx, principalID, id, false)
		return autherr.Network(err)
	}
	if match {
		if !m.settle(ctx, principalID, id, true) {
			return autherr.ErrSessionExpired
		}
		return nil
	}

	m.mu.Lock()
	c, ok = m.byUser[principalID]
	if !ok || c.ID != id {
		m.mu.Unlock()
		// Superseded or discarded while the channel call was in flight.
		return autherr.ErrSessionExpired
	}
	remaining := c.AttemptsRemaining
	m.mu.Unlock()
	if remaining <= 0 {
		return autherr.ErrAttemptsExhausted
	}
	return autherr.InvalidCode(remaining)
}

// settle gives back an attempt taken by Verify and, when verified is set, marks the challenge
// verified. It reports false when challenge id is no longer the principal's.
func (m *ChallengeManager) settle(ctx context.Context, principalID, id string, verified bool) bool {
	m.mu.Lock()
	c, ok := m.byUser[principalID]
	if !ok || c.ID != id {
		m.mu.Unlock()
		return false
	}
	c.AttemptsRemaining++
	if verified {
		c.Verified = true
	}
	out := *c
	m.mu.Unlock()
	_ = m.save(ctx, out)
	return true
}

// Pending returns the principal's challenge when it can still accept the code that was delivered
// for it: live, and still held by the channel. A stored record is picked up when the process has
// none in memory.
func (m *ChallengeManager) Pending(ctx context.Context, principalID string) (domain.Challenge, bool) {
	if _, err := m.lookup(ctx, principalID); err != nil {
		return domain.Challenge{}, false
	}
	m.mu.Lock()
	c, ok := m.byUser[principalID]
	if !ok || !c.Live(m.nowF()) {
		m.mu.Unlock()
		return domain.Challenge{}, false
	}
	out := *c
	m.mu.Unlock()
	if h, ok := m.channel.(Holder); ok {
		if held, err := h.Holds(ctx, principalID); err != nil || !held {
			return domain.Challenge{}, false
		}
	}
	return out, true
}

// Get returns a copy of the principal's challenge record, live or retired.
func (m *ChallengeManager) Get(principalID string) (domain.Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byUser[principalID]
	if !ok {
		return domain.Challenge{}, false
	}
	return *c, true
}

// Live reports whether the principal has a challenge that can still accept a verify call.
func (m *ChallengeManager) Live(principalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byUser[principalID]
	return ok && c.Live(m.nowF())
}

// Discard drops the principal's challenge, if any, here and in the stored records.
func (m *ChallengeManager) Discard(ctx context.Context, principalID string) {
	if principalID == "" {
		return
	}
	m.mu.Lock()
	delete(m.byUser, principalID)
	m.mu.Unlock()
	if m.records != nil {
		_ = m.records.Delete(ctx, principalID)
	}
}

// Now returns the manager's current time. Display countdowns should derive from it.
func (m *ChallengeManager) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowF()
}

// lookup makes sure a stored record is in memory when the process has none for principalID.
func (m *ChallengeManager) lookup(ctx context.Context, principalID string) (*domain.Challenge, error) {
	m.mu.Lock()
	c, ok := m.byUser[principalID]
	m.mu.Unlock()
	if ok || m.records == nil || principalID == "" {
		return c, nil
	}
	stored, err := m.records.Get(ctx, principalID)
	if err != nil || stored == nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byUser[principalID]; ok {
		return c, nil
	}
	m.byUser[principalID] = stored
	return stored, nil
}

func (m *ChallengeManager) save(ctx context.Context, c domain.Challenge) error {
	if m.records == nil {
		return nil
	}
	return m.records.Put(ctx, c)
}
