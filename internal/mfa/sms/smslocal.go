package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// DefaultBaseURL is the SMS Local bulk API endpoint.
const DefaultBaseURL = "https://www.smslocal.com/dev/bulkV2"

var (
	// ErrInvalidPhone is returned when a phone number has no digits left after normalization.
	ErrInvalidPhone = errors.New("sms: invalid phone number")
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("sms: API key not configured")
)

// StatusError is a non-2xx reply from the gateway. Body is truncated.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sms: request failed status=%d body=%s", e.Status, e.Body)
}

// Temporary reports whether resending later may succeed (throttling or a gateway fault).
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type bulkRequest struct {
	Route     string `json:"route"`
	Numbers   string `json:"numbers"`
	Variables string `json:"variables"`
	SenderID  string `json:"sender_id,omitempty"`
}

// SMSLocalClient sends OTP SMS via the SMS Local API.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NormalizePhone strips everything but digits from a raw contact number ("+91 98765-43210" -> "919876543210").
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SendOTP texts otp to phone on the gateway's otp route. The code itself is never logged.
func (c *SMSLocalClient) SendOTP(ctx context.Context, phone, otp string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	numbers := NormalizePhone(phone)
	if numbers == "" {
		return ErrInvalidPhone
	}
	raw, err := json.Marshal(bulkRequest{Route: "otp", Numbers: numbers, Variables: otp, SenderID: c.Sender})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(b)}
	}
	return nil
}
