// Package auth owns the Spotify credential: it persists it, refreshes it
// before expiry and hands callers a usable bearer token.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const (
	configDirName = "spotify-listen-sync"
	tokenFileName = "token.json"
)

// CredentialStore persists the credential between runs.
type CredentialStore interface {
	// Load returns (nil, nil) when no credential has been stored.
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
	// Delete removes the stored credential. Deleting nothing is not an error.
	Delete() error
}

// FileStore keeps the credential in a JSON file.
type FileStore struct {
	path string
}

// DefaultPath returns ~/.config/spotify-listen-sync/token.json.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config dir: %w", err)
	}
	return filepath.Join(configDir, configDirName, tokenFileName), nil
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path where the credential is stored.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored credential from disk.
// Returns (nil, nil) if the file does not exist.
func (s *FileStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}

	return &token, nil
}

// Save writes the credential to disk, creating the parent directory if needed.
func (s *FileStore) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	// Readers never observe a partially written file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}

	return nil
}

// Delete removes the token file.
// Returns nil if the file does not exist.
func (s *FileStore) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// MemoryStore keeps the credential in memory.
type MemoryStore struct {
	mu    sync.Mutex
	token *oauth2.Token
	saves int
}

// NewMemoryStore creates a MemoryStore holding token, which may be nil.
func NewMemoryStore(token *oauth2.Token) *MemoryStore {
	return &MemoryStore{token: copyToken(token)}
}

// Load returns a copy of the stored credential.
func (s *MemoryStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyToken(s.token), nil
}

// Save replaces the stored credential.
func (s *MemoryStore) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = copyToken(token)
	s.saves++
	return nil
}

// Delete forgets the stored credential.
func (s *MemoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func copyToken(t *oauth2.Token) *oauth2.Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
