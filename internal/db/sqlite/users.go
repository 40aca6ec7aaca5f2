package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

// UserRepository handles user database operations.
type UserRepository struct {
	conn *sql.DB
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*db.User, error) {
	query := `SELECT user_id, display_name, email, created_at FROM users WHERE user_id = ?`

	var user db.User
	var createdAt string
	err := r.conn.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.DisplayName, &user.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// Upsert creates or updates a user.
func (r *UserRepository) Upsert(ctx context.Context, user *db.User) error {
	query := `
		INSERT INTO users (user_id, display_name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email
		RETURNING created_at
	`
	var createdAt string
	err := r.conn.QueryRowContext(ctx, query,
		user.ID,
		user.DisplayName,
		user.Email,
		formatTime(time.Now()),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}
	return nil
}
