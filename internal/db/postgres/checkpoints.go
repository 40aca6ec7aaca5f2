package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

// CheckpointRepository handles download history operations.
type CheckpointRepository struct {
	pool *pgxpool.Pool
}

// Append inserts a new checkpoint row.
func (r *CheckpointRepository) Append(ctx context.Context, cp *db.Checkpoint) error {
	query := `
		INSERT INTO download_history (last_downloaded_at, songs_downloaded, download_completed_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		cp.LastPlayedAt.UTC(),
		cp.PlaysIngested,
		cp.CompletedAt.UTC(),
	).Scan(&cp.ID)
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
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
	err := r.pool.QueryRow(ctx, query).Scan(&cp.ID, &cp.LastPlayedAt, &cp.PlaysIngested, &cp.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint: %w", err)
	}
	return &cp, nil
}
