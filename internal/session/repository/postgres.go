package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"backoffice/portal/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var (
		s          domain.Session
		revokedAt  sql.NullTime
		lastSeenAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, realm, expires_at, revoked_at, last_seen_at, created_at
		   FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.Realm, &s.ExpiresAt, &revokedAt, &lastSeenAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.LastSeenAt = nullTimeToPtr(lastSeenAt)
	return &s, nil
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, realm, expires_at, revoked_at, last_seen_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.Realm, s.ExpiresAt, timeToNullTime(s.RevokedAt), timeToNullTime(s.LastSeenAt), s.CreatedAt)
	return err
}

// RevokeAllSessionsByUser revokes every live session of the given user.
func (r *PostgresRepository) RevokeAllSessionsByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, time.Now().UTC())
	return err
}

// UpdateLastSeen sets the session's last-seen timestamp for the given id.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
