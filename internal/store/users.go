package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Users persists buyer registrations keyed by Telegram id.
type Users struct {
	db *sqlx.DB
}

// NewUsers constructs a user repository over the shared connection pool.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

// Upsert registers or refreshes a buyer. Idempotent.
func (u *Users) Upsert(ctx context.Context, id int64, username, fullName string) error {
	_, err := u.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    full_name = EXCLUDED.full_name,
		    updated_at = now()`,
		id, username, fullName)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", id, err)
	}
	return nil
}
