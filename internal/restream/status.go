package restream

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Status values for a platform's restream lifecycle.
const (
	StatusIdle   = "idle"
	StatusActive = "active"
	StatusError  = "error"
)

// StatusRecord is the persisted lifecycle state for one platform.
type StatusRecord struct {
	PlatformID   string     `toml:"platform_id"`
	Status       string     `toml:"status"`
	StartedAt    *time.Time `toml:"started_at,omitempty"`
	StoppedAt    *time.Time `toml:"stopped_at,omitempty"`
	ErrorMessage string     `toml:"error_message,omitempty"`
}

// StatusStore persists per-platform restream status to a TOML file.
type StatusStore struct {
	mu      sync.Mutex
	path    string
	records map[string]StatusRecord
}

type statusFile struct {
	Records []StatusRecord `toml:"records"`
}

// NewStatusStore creates a store backed by the given file path.
func NewStatusStore(path string) *StatusStore {
	if path == "" {
		path = "restream_status.toml"
	}
	return &StatusStore{path: path, records: make(map[string]StatusRecord)}
}

// Load reads the status file. Every known platform gets an idle record if
// the file has none; a process restart never resumes "active".
func (s *StatusStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read restream status: %w", err)
	}
	if err == nil {
		var file statusFile
		if err := toml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse restream status: %w", err)
		}
		for _, r := range file.Records {
			if r.Status == StatusActive {
				// The owning process is gone, whatever the file says.
				r.Status = StatusIdle
			}
			s.records[r.PlatformID] = r
		}
	}

	for _, id := range platformOrder {
		if _, ok := s.records[id]; !ok {
			s.records[id] = StatusRecord{PlatformID: id, Status: StatusIdle}
		}
	}
	return nil
}

// List returns all status records in platform order.
func (s *StatusStore) List() []StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StatusRecord, 0, len(platformOrder))
	for _, id := range platformOrder {
		out = append(out, s.records[id])
	}
	return out
}

// Get returns one platform's status record.
func (s *StatusStore) Get(id string) (StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// SetActive marks a platform active with the given start time and clears
// any previous error message.
func (s *StatusStore) SetActive(id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = StatusRecord{
		PlatformID: id,
		Status:     StatusActive,
		StartedAt:  &startedAt,
	}
	return s.save()
}

// SetIdle marks a platform idle with the given stop time.
func (s *StatusStore) SetIdle(id string, stoppedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.PlatformID = id
	r.Status = StatusIdle
	r.StoppedAt = &stoppedAt
	r.ErrorMessage = ""
	s.records[id] = r
	return s.save()
}

// SetError marks a platform errored with the given stop time and message.
func (s *StatusStore) SetError(id string, stoppedAt time.Time, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.PlatformID = id
	r.Status = StatusError
	r.StoppedAt = &stoppedAt
	r.ErrorMessage = message
	s.records[id] = r
	return s.save()
}

// save writes the file; caller must hold the lock.
func (s *StatusStore) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create status directory: %w", err)
		}
	}

	file := statusFile{Records: make([]StatusRecord, 0, len(s.records))}
	for _, id := range platformOrder {
		if r, ok := s.records[id]; ok {
			file.Records = append(file.Records, r)
		}
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal restream status: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write restream status: %w", err)
	}
	return nil
}
