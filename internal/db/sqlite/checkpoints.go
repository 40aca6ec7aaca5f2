package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

// CheckpointRepository handles download history operations.
type CheckpointRepository struct {
	conn *sql.DB
}

// Append inserts a new checkpoint row.
func (r *CheckpointRepository) Append(ctx context.Context, cp *db.Checkpoint) error {
	query := `
		INSERT INTO download_history (last_downloaded_at, songs_downloaded, download_completed_at)
		VALUES (?, ?, ?)
	`
	result, err := r.conn.ExecContext(ctx, query,
		formatTime(cp.LastPlayedAt),
		cp.PlaysIngested,
		formatTime(cp.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	if cp.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading checkpoint id: %w", err)
	}
	return nil
}

// Latest returns the most recently completed checkpoint.
func (r *CheckpointRepository) Latest(ctx context.Context) (*db.Checkpoint, error) {
	query := `
		SELECT id, last_downloaded_at, songs_downloaded, download_completed_at
		FROM download_history
		ORDER BY download_completed_at DESC, id DESC
		LIMIT 1
	`
	var cp db.Checkpoint
	var lastPlayedAt, completedAt string
	err := r.conn.QueryRowContext(ctx, query).Scan(&cp.ID, &lastPlayedAt, &cp.PlaysIngested, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint: %w", err)
	}
	if cp.LastPlayedAt, err = parseTime(lastPlayedAt); err != nil {
		return nil, err
	}
	if cp.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, err
	}
	return &cp, nil
}
