// Package sqlite implements the db repositories on a local SQLite file.
//
// Instants are stored as fixed-width UTC text so that lexical order matches
// chronological order.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

//go:embed schema.sql
var schema string

// timeLayout keeps microsecond precision, which is what the feed reports.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// DB wraps a SQLite connection.
type DB struct {
	conn *sql.DB
}

var _ db.Store = (*DB)(nil)

// Open opens the database at path and applies the schema.
// The path can be ":memory:" for an in-memory database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serialises writers and keeps ":memory:" a single database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Users returns a UserRepository.
func (d *DB) Users() db.UserRepository {
	return &UserRepository{conn: d.conn}
}

// Tracks returns a TrackRepository.
func (d *DB) Tracks() db.TrackRepository {
	return &TrackRepository{conn: d.conn}
}

// Plays returns a PlayRepository.
func (d *DB) Plays() db.PlayRepository {
	return &PlayRepository{conn: d.conn}
}

// Checkpoints returns a CheckpointRepository.
func (d *DB) Checkpoints() db.CheckpointRepository {
	return &CheckpointRepository{conn: d.conn}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
