// Package statefile persists small session state (broker tokens) to a local
// JSON file with atomic replace, so a relay restart inside market hours does
// not force a fresh broker login.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session is the persisted broker session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	LastLogin    time.Time `json:"last_login"`
}

// Store reads and writes one JSON state file.
type Store struct {
	path string
}

// New creates a Store for the given path, creating parent directories.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("statefile mkdir: %w", err)
	}
	return &Store{path: path}, nil
}

// Load reads the persisted session. Returns (nil, nil) when no state file
// exists yet — a missing file is not an error on first run.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statefile read: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("statefile parse: %w", err)
	}
	return &sess, nil
}

// Save writes the session atomically: marshal to a temp file in the same
// directory, then rename over the old one. A crash mid-write never leaves a
// truncated state file behind.
func (s *Store) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("statefile marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("statefile tmp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statefile write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statefile close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statefile rename: %w", err)
	}
	return nil
}

// Clear removes the state file (used on explicit logout).
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
