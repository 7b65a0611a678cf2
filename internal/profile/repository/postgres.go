package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"backoffice/portal/internal/profile/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the profile row for principalID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, principalID string) (*domain.Record, error) {
	var (
		rec   domain.Record
		role  sql.NullString
		phone sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, phone FROM profiles WHERE user_id = $1`, principalID,
	).Scan(&rec.PrincipalID, &role, &phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Role = role.String
	rec.Phone = phone.String
	return &rec, nil
}

// Upsert creates or replaces the profile row of rec.PrincipalID. The role is stored as given.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *domain.Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, role, phone, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at`,
		rec.PrincipalID,
		sql.NullString{String: rec.Role, Valid: rec.Role != ""},
		sql.NullString{String: rec.Phone, Valid: rec.Phone != ""},
		time.Now().UTC())
	return err
}
