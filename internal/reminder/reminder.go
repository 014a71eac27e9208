// Package reminder dispatches scheduled announcements to gateway channels.
// A dispatcher periodically scans a source for due reminders and fans each
// one out through the messaging layer exactly once.
package reminder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// Reminder is one scheduled announcement.
type Reminder struct {
	ID         string     `toml:"id"`
	ChannelID  string     `toml:"channel_id"`
	Title      string     `toml:"title"`
	Body       string     `toml:"body,omitempty"`
	DueAt      time.Time  `toml:"due_at"`
	Dispatched *time.Time `toml:"dispatched,omitempty"`
}

// Store persists reminders to a TOML file and serves as the dispatcher's
// source of due entries.
type Store struct {
	mu        sync.Mutex
	path      string
	reminders []Reminder
}

type reminderFile struct {
	Reminders []Reminder `toml:"reminders"`
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	if path == "" {
		path = "reminders.toml"
	}
	return &Store{path: path}
}

// Load reads the reminder file. A missing file yields an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read reminders: %w", err)
	}
	var file reminderFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse reminders: %w", err)
	}
	s.reminders = file.Reminders
	return nil
}

// Add schedules a new reminder and persists it.
func (s *Store) Add(channelID, title, body string, dueAt time.Time) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Reminder{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Title:     title,
		Body:      body,
		DueAt:     dueAt,
	}
	s.reminders = append(s.reminders, r)
	if err := s.save(); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

// List returns all reminders.
func (s *Store) List() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reminder, len(s.reminders))
	copy(out, s.reminders)
	return out
}

// Due returns reminders whose due time has passed and that have not been
// dispatched yet.
func (s *Store) Due(now time.Time) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Reminder
	for _, r := range s.reminders {
		if r.Dispatched == nil && !r.DueAt.After(now) {
			due = append(due, r)
		}
	}
	return due
}

// MarkDispatched records that a reminder has been delivered so it is never
// fanned out twice.
func (s *Store) MarkDispatched(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reminders {
		if s.reminders[i].ID == id {
			s.reminders[i].Dispatched = &at
			return s.save()
		}
	}
	return fmt.Errorf("unknown reminder %q", id)
}

// save writes the file; caller must hold the lock.
func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create reminder directory: %w", err)
		}
	}

	data, err := toml.Marshal(reminderFile{Reminders: s.reminders})
	if err != nil {
		return fmt.Errorf("failed to marshal reminders: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write reminders: %w", err)
	}
	return nil
}
