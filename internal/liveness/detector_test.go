package liveness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorStatus(t *testing.T) {
	t.Run("live when manifest responds 200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			w.Write([]byte("#EXTM3U\n"))
		}))
		defer srv.Close()

		d := NewDetector(Options{ManifestURL: srv.URL + "/live/index.m3u8"})
		status := d.Status(context.Background())
		assert.True(t, status.IsLive)
	})

	t.Run("offline when manifest responds 404", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		d := NewDetector(Options{ManifestURL: srv.URL + "/live/index.m3u8"})
		status := d.Status(context.Background())
		assert.False(t, status.IsLive)
	})

	t.Run("offline when upstream is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		d := NewDetector(Options{ManifestURL: srv.URL + "/live/index.m3u8"})
		status := d.Status(context.Background())
		assert.False(t, status.IsLive)
	})
}

func TestDetectorDebounce(t *testing.T) {
	var polls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	d := NewDetector(Options{
		ManifestURL: srv.URL + "/live/index.m3u8",
		TTL:         5 * time.Second,
		Clock:       clock,
	})

	for range 10 {
		d.Status(context.Background())
	}
	assert.Equal(t, int64(1), polls.Load(), "calls within the TTL must reuse the cached result")

	clock.Advance(6 * time.Second)
	d.Status(context.Background())
	assert.Equal(t, int64(2), polls.Load(), "expired cache triggers exactly one new poll")
}

func TestDetectorTransitionBookkeeping(t *testing.T) {
	live := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if live.Load() {
			w.Write([]byte("#EXTM3U\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	store := NewInfoStore(filepath.Join(t.TempDir(), "broadcast.toml"))
	require.NoError(t, store.Load())

	clock := clockwork.NewFakeClock()
	d := NewDetector(Options{
		ManifestURL: srv.URL + "/live/index.m3u8",
		TTL:         time.Second,
		Clock:       clock,
		Store:       store,
	})

	// Offline first: no session in progress.
	d.Status(context.Background())
	assert.Nil(t, store.Get().StartedAt)

	// Going live records the session start.
	live.Store(true)
	clock.Advance(2 * time.Second)
	d.Status(context.Background())
	started := store.Get().StartedAt
	require.NotNil(t, started)

	// Staying live leaves the original start untouched.
	clock.Advance(2 * time.Second)
	d.Status(context.Background())
	require.NotNil(t, store.Get().StartedAt)
	assert.Equal(t, *started, *store.Get().StartedAt)

	// Going offline clears it.
	live.Store(false)
	clock.Advance(2 * time.Second)
	d.Status(context.Background())
	assert.Nil(t, store.Get().StartedAt)
}
