package mfa

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice/portal/internal/mfa/domain"
)

// Records persists challenge records so the resend cooldown and the attempt budget hold
// across processes. Get returns nil when the principal has no record.
type Records interface {
	Get(ctx context.Context, principalID string) (*domain.Challenge, error)
	Put(ctx context.Context, c domain.Challenge) error
	Delete(ctx context.Context, principalID string) error
}

// KV is the string store records are kept in. localstate.Store satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

const challengeKeyPrefix = "auth.otpChallenge."

// ChallengeKey is the key of principalID's challenge record.
func ChallengeKey(principalID string) string { return challengeKeyPrefix + principalID }

// KVRecords keeps each challenge record as JSON under ChallengeKey.
type KVRecords struct {
	kv KV
}

// NewKVRecords returns Records backed by kv.
func NewKVRecords(kv KV) *KVRecords {
	return &KVRecords{kv: kv}
}

func (r *KVRecords) Get(ctx context.Context, principalID string) (*domain.Challenge, error) {
	raw, ok, err := r.kv.Get(ctx, ChallengeKey(principalID))
	if err != nil || !ok {
		return nil, err
	}
	var c domain.Challenge
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("challenge record of %s: %w", principalID, err)
	}
	return &c, nil
}

func (r *KVRecords) Put(ctx context.Context, c domain.Challenge) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, ChallengeKey(c.PrincipalID), string(raw))
}

func (r *KVRecords) Delete(ctx context.Context, principalID string) error {
	return r.kv.Delete(ctx, ChallengeKey(principalID))
}
