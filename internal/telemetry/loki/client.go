// Package loki provides a client to push log entries to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"backoffice/portal/internal/telemetry/domain"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are invalid in Loki label names/values.
// Loki labels: name must match [a-zA-Z_:][a-zA-Z0-9_:]*, value can be any string but we avoid problematic chars.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Job is the value of the job label on every pushed stream.
const Job = "portal"

// Client pushes to one Loki instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// labelsOf returns the stream labels of e. Only bounded fields become labels; principal and
// session ids stay in the line so stream cardinality does not grow with users.
func labelsOf(e *domain.AuthEvent) map[string]string {
	labels := map[string]string{}
	for k, v := range map[string]string{
		"realm":      e.Realm,
		"event_type": e.EventType,
		"stage":      e.Stage,
		"reason":     e.Reason,
		"source":     e.Source,
	} {
		if v != "" {
			labels[k] = v
		}
	}
	return labels
}

// PushEventJSON pushes one serialized AuthEvent (a Kafka message value) at its creation time.
// A line that does not decode is pushed as is, at the current time and with only the job label.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	var ev domain.AuthEvent
	if err := json.Unmarshal(rawJSON, &ev); err != nil {
		return c.PushEvent(ctx, time.Now().UTC(), string(rawJSON), nil)
	}
	ts := ev.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return c.PushEvent(ctx, ts, string(rawJSON), labelsOf(&ev))
}

// PushEvent sends a single log line to Loki. timestamp is the event time; line is the log line (e.g. JSON).
// labels are added to the stream next to job=portal.
// Returns an error if the HTTP request fails or Loki returns non-2xx.
func (c *Client) PushEvent(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if c.BaseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	ns := timestamp.UnixNano()
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = Job
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(ns, 10), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("loki: push returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return nil
}
