// Package db defines the persisted listening-history records and the
// repository contracts implemented by the sqlite and postgres stores.
package db

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

// Store groups the repositories backing one listening history.
type Store interface {
	Users() UserRepository
	Tracks() TrackRepository
	Plays() PlayRepository
	Checkpoints() CheckpointRepository
	Close() error
}

// UserRepository handles user profile rows.
type UserRepository interface {
	// Upsert creates the user or refreshes display name and email.
	// CreatedAt of an existing row is kept.
	Upsert(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
}

// TrackRepository handles track rows.
//
// Descriptive fields are first-write-wins: Insert never touches an existing
// row, and the enrichment mutators only fill fields that are still null.
type TrackRepository interface {
	// Insert stores the track if its ID is absent and reports whether a row was created.
	Insert(ctx context.Context, track *Track) (bool, error)
	Get(ctx context.Context, id string) (*Track, error)

	// ApplyAudioFeatures writes a whole batch in one transaction.
	ApplyAudioFeatures(ctx context.Context, features []AudioFeatures) error

	// SetGenre sets the genre of a track whose genre is still null.
	SetGenre(ctx context.Context, id, genre string) error

	// MissingGenre returns up to limit tracks with a null genre, oldest first.
	MissingGenre(ctx context.Context, limit int) ([]Track, error)

	// Recent returns up to limit tracks, most recently stored first.
	Recent(ctx context.Context, limit int) ([]Track, error)

	// WithAudioFeatures returns every track whose energy, valence and danceability are set.
	WithAudioFeatures(ctx context.Context) ([]Track, error)
}

// PlayRepository handles play rows.
type PlayRepository interface {
	// Insert stores the play unless (TrackID, PlayedAt) already exists and
	// reports whether a row was created. On insert play.ID is set.
	Insert(ctx context.Context, play *Play) (bool, error)
	Get(ctx context.Context, id int64) (*Play, error)

	// Next returns the earliest play strictly after the given instant.
	// Returns ErrNotFound if there is none.
	Next(ctx context.Context, after time.Time) (*Play, error)

	// Untagged returns plays missing at least one tag, newest first, with the
	// total number of such plays.
	Untagged(ctx context.Context, limit, offset int) ([]PlayDetail, int, error)

	// SaveTags stores the tags and skip verdict of a play and stamps tagged_at.
	SaveTags(ctx context.Context, id int64, tags Tags, skipped *bool, taggedAt time.Time) error

	Stats(ctx context.Context) (*TagStats, error)
	Count(ctx context.Context) (int, error)
}

// CheckpointRepository handles the append-only download history.
type CheckpointRepository interface {
	Append(ctx context.Context, cp *Checkpoint) error

	// Latest returns the most recently completed checkpoint.
	// Returns ErrNotFound before the first completed run.
	Latest(ctx context.Context) (*Checkpoint, error)
}
