package restream

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Well-known platform identifiers. The platform set is closed: rows exist
// for every known platform from first load, and unknown identifiers are
// rejected on update.
const (
	PlatformYouTube  = "youtube"
	PlatformFacebook = "facebook"
)

// platformOrder fixes listing order independent of map iteration.
var platformOrder = []string{PlatformYouTube, PlatformFacebook}

// defaultIngest maps each platform to its default RTMP ingest endpoint,
// used when no explicit override is configured.
var defaultIngest = map[string]string{
	PlatformYouTube:  "rtmp://a.rtmp.youtube.com/live2",
	PlatformFacebook: "rtmps://live-api-s.facebook.com:443/rtmp",
}

// Platform is one downstream restream target. StreamKey and APIKey hold
// vault ciphertext, never plaintext.
type Platform struct {
	ID        string `toml:"id"`
	Name      string `toml:"name"`
	Enabled   bool   `toml:"enabled"`
	RTMPURL   string `toml:"rtmp_url,omitempty"`
	StreamKey string `toml:"stream_key,omitempty"`
	ChannelID string `toml:"channel_id,omitempty"`
	APIKey    string `toml:"api_key,omitempty"`
}

// IngestURL returns the configured RTMP endpoint, falling back to the
// platform default.
func (p Platform) IngestURL() string {
	if p.RTMPURL != "" {
		return p.RTMPURL
	}
	return defaultIngest[p.ID]
}

// PlatformUpdate is a partial platform update. Nil fields are unchanged.
// Secret fields must already be vault ciphertext when set.
type PlatformUpdate struct {
	Enabled   *bool
	RTMPURL   *string
	StreamKey *string
	ChannelID *string
	APIKey    *string
}

// PlatformStore persists platform rows to a TOML file.
type PlatformStore struct {
	mu        sync.Mutex
	path      string
	platforms map[string]Platform
}

type platformFile struct {
	Platforms []Platform `toml:"platforms"`
}

// NewPlatformStore creates a store backed by the given file path.
func NewPlatformStore(path string) *PlatformStore {
	if path == "" {
		path = "platforms.toml"
	}
	return &PlatformStore{path: path, platforms: make(map[string]Platform)}
}

// Load reads the platform file and seeds rows for any known platform the
// file does not mention. A missing file yields the full default set.
func (s *PlatformStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read platform config: %w", err)
	}
	if err == nil {
		var file platformFile
		if err := toml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse platform config: %w", err)
		}
		for _, p := range file.Platforms {
			if _, known := defaultIngest[p.ID]; known {
				s.platforms[p.ID] = p
			}
		}
	}

	for _, id := range platformOrder {
		if _, ok := s.platforms[id]; !ok {
			s.platforms[id] = Platform{ID: id, Name: displayName(id)}
		}
	}
	return nil
}

// List returns all platform rows in a fixed order.
func (s *PlatformStore) List() []Platform {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Platform, 0, len(platformOrder))
	for _, id := range platformOrder {
		out = append(out, s.platforms[id])
	}
	return out
}

// Get returns one platform row.
func (s *PlatformStore) Get(id string) (Platform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.platforms[id]
	return p, ok
}

// Update applies a partial update to one platform and persists the file.
func (s *PlatformStore) Update(id string, update PlatformUpdate) (Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.platforms[id]
	if !ok {
		return Platform{}, fmt.Errorf("unknown platform %q", id)
	}

	if update.Enabled != nil {
		p.Enabled = *update.Enabled
	}
	if update.RTMPURL != nil {
		p.RTMPURL = *update.RTMPURL
	}
	if update.StreamKey != nil {
		p.StreamKey = *update.StreamKey
	}
	if update.ChannelID != nil {
		p.ChannelID = *update.ChannelID
	}
	if update.APIKey != nil {
		p.APIKey = *update.APIKey
	}

	s.platforms[id] = p
	if err := s.save(); err != nil {
		return Platform{}, err
	}
	return p, nil
}

// save writes the file; caller must hold the lock.
func (s *PlatformStore) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	file := platformFile{Platforms: make([]Platform, 0, len(platformOrder))}
	for _, id := range platformOrder {
		file.Platforms = append(file.Platforms, s.platforms[id])
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal platform config: %w", err)
	}
	// Stream keys are encrypted but the file still stays owner-only.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write platform config: %w", err)
	}
	return nil
}

func displayName(id string) string {
	switch id {
	case PlatformYouTube:
		return "YouTube"
	case PlatformFacebook:
		return "Facebook"
	}
	return id
}
