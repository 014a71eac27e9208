package liveness

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Info is the operator-editable broadcast metadata plus the session start
// timestamp maintained by the detector.
type Info struct {
	Title        string     `toml:"title"`
	Description  string     `toml:"description"`
	ThumbnailURL string     `toml:"thumbnail_url"`
	StartedAt    *time.Time `toml:"started_at,omitempty"`
}

// InfoUpdate is a partial update; nil fields are left unchanged. The live
// flag is deliberately absent: liveness is derived, never settable.
type InfoUpdate struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
}

// InfoStore persists broadcast info to a TOML file. The detector writes the
// session start timestamp on transitions; administrators write the rest.
type InfoStore struct {
	mu   sync.Mutex
	path string
	info Info
}

// NewInfoStore creates a store backed by the given file path.
func NewInfoStore(path string) *InfoStore {
	if path == "" {
		path = "broadcast.toml"
	}
	return &InfoStore{path: path}
}

// Load reads the info file. A missing file leaves defaults in place.
func (s *InfoStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read broadcast info: %w", err)
	}
	if err := toml.Unmarshal(data, &s.info); err != nil {
		return fmt.Errorf("failed to parse broadcast info: %w", err)
	}
	return nil
}

// Get returns a copy of the current info.
func (s *InfoStore) Get() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Update applies a partial update and persists.
func (s *InfoStore) Update(update InfoUpdate) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Title != nil {
		s.info.Title = *update.Title
	}
	if update.Description != nil {
		s.info.Description = *update.Description
	}
	if update.ThumbnailURL != nil {
		s.info.ThumbnailURL = *update.ThumbnailURL
	}
	if err := s.save(); err != nil {
		return Info{}, err
	}
	return s.info, nil
}

// SetStartedAt records the session start timestamp. Called by the detector
// on an offline-to-live transition only.
func (s *InfoStore) SetStartedAt(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.StartedAt = &t
	return s.save()
}

// ClearStartedAt removes the session start timestamp on live-to-offline.
func (s *InfoStore) ClearStartedAt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.StartedAt = nil
	return s.save()
}

// save writes the file; caller must hold the lock.
func (s *InfoStore) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create info directory: %w", err)
		}
	}

	data, err := toml.Marshal(s.info)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast info: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write broadcast info: %w", err)
	}
	return nil
}
