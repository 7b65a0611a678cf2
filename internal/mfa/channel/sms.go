// Package channel implements the out-of-band delivery channel used by mfa.ChallengeManager.
package channel

import (
	"context"
	"fmt"
	"time"

	"backoffice/portal/internal/mfa"
	"backoffice/portal/internal/mfa/codestore"
)

// Sender delivers a plain code to a phone number.
type Sender interface {
	SendOTP(ctx context.Context, phone, otp string) error
}

// SMSChannel generates codes, keeps their hashes in a code store and texts them through a Sender.
type SMSChannel struct {
	sender Sender
	codes  codestore.Store
	ttl    time.Duration
	gen    func() (string, error)
}

var (
	_ mfa.Channel = (*SMSChannel)(nil)
	_ mfa.Holder  = (*SMSChannel)(nil)
)

// NewSMSChannel returns a channel whose codes live for ttl in codes.
func NewSMSChannel(sender Sender, codes codestore.Store, ttl time.Duration) *SMSChannel {
	return &SMSChannel{sender: sender, codes: codes, ttl: ttl, gen: mfa.GenerateOTP}
}

// Deliver replaces any outstanding code for principalID and sends the new one to phone.
// If sending fails the stored hash is removed so the undelivered code cannot be used.
func (c *SMSChannel) Deliver(ctx context.Context, principalID, phone string) error {
	otp, err := c.gen()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	if err := c.codes.Put(ctx, principalID, mfa.HashOTP(otp), c.ttl); err != nil {
		return err
	}
	if err := c.sender.SendOTP(ctx, phone, otp); err != nil {
		_ = c.codes.Delete(context.WithoutCancel(ctx), principalID)
		return err
	}
	return nil
}

// Verify reports whether code matches the outstanding code for principalID.
// A match consumes the code. A missing or expired code never matches.
func (c *SMSChannel) Verify(ctx context.Context, principalID, code string) (bool, error) {
	if !mfa.WellFormed(code) {
		return false, nil
	}
	hash, ok, err := c.codes.Get(ctx, principalID)
	if err != nil {
		return false, err
	}
	if !ok || !mfa.OTPEqual(code, hash) {
		return false, nil
	}
	if err := c.codes.Delete(ctx, principalID); err != nil {
		return false, err
	}
	return true, nil
}

// Holds reports whether a code delivered to principalID is still stored and unused.
func (c *SMSChannel) Holds(ctx context.Context, principalID string) (bool, error) {
	_, ok, err := c.codes.Get(ctx, principalID)
	return ok, err
}
