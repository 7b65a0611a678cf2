package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"backoffice/portal/internal/telemetry/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an auth event repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save persists the event. Redelivered events (same id) are ignored.
func (r *PostgresRepository) Save(ctx context.Context, e *domain.AuthEvent) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return err
	}
	if e.Attributes == nil {
		attrs = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO auth_events (id, event_type, realm, principal_id, session_id, stage, reason, source, attributes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.EventType, e.Realm,
		nullString(e.PrincipalID), nullString(e.SessionID), nullString(e.Stage), nullString(e.Reason), nullString(e.Source),
		string(attrs), e.CreatedAt)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
