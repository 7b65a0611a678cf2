package domain

import "time"

// AuthEvent is a telemetry record of one portal session transition or auth outcome.
// It is serialized as JSON on the Kafka topic and pushed to Loki by the worker.
type AuthEvent struct {
	ID          string            `json:"id"`
	EventType   string            `json:"event_type"`
	Realm       string            `json:"realm"`
	PrincipalID string            `json:"principal_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Stage       string            `json:"stage,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Source      string            `json:"source,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
