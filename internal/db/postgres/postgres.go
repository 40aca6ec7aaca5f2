// Package postgres implements the db repositories on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

//go:embed schema.sql
var schema string

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

var _ db.Store = (*DB)(nil)

// New creates a new database connection pool and applies the schema.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Users returns a UserRepository.
func (d *DB) Users() db.UserRepository {
	return &UserRepository{pool: d.pool}
}

// Tracks returns a TrackRepository.
func (d *DB) Tracks() db.TrackRepository {
	return &TrackRepository{pool: d.pool}
}

// Plays returns a PlayRepository.
func (d *DB) Plays() db.PlayRepository {
	return &PlayRepository{pool: d.pool}
}

// Checkpoints returns a CheckpointRepository.
func (d *DB) Checkpoints() db.CheckpointRepository {
	return &CheckpointRepository{pool: d.pool}
}
