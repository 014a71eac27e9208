package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapelmedia/broadcastd/internal/api/models"
	"github.com/chapelmedia/broadcastd/internal/events"
	"github.com/chapelmedia/broadcastd/internal/liveness"
	"github.com/chapelmedia/broadcastd/internal/restream"
	"github.com/chapelmedia/broadcastd/internal/vault"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type apiFixture struct {
	server    *Server
	vault     *vault.Vault
	platforms *restream.PlatformStore
	info      *liveness.InfoStore
	upstream  *httptest.Server
	live      bool
}

func newAPIFixture(t *testing.T, mods ...func(*Options)) *apiFixture {
	t.Helper()
	dir := t.TempDir()

	f := &apiFixture{}
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.live {
			w.Write([]byte("#EXTM3U\n"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(f.upstream.Close)

	v, err := vault.New(testKeyHex)
	require.NoError(t, err)
	f.vault = v

	f.info = liveness.NewInfoStore(filepath.Join(dir, "broadcast.toml"))
	require.NoError(t, f.info.Load())

	detector := liveness.NewDetector(liveness.Options{
		ManifestURL: f.upstream.URL + "/live/index.m3u8",
		TTL:         time.Nanosecond, // every status request polls
		Store:       f.info,
	})

	f.platforms = restream.NewPlatformStore(filepath.Join(dir, "platforms.toml"))
	require.NoError(t, f.platforms.Load())

	status := restream.NewStatusStore(filepath.Join(dir, "status.toml"))
	require.NoError(t, status.Load())

	supervisor := restream.NewSupervisor(restream.SupervisorOptions{
		ManifestURL: f.upstream.URL + "/live/index.m3u8",
		Platforms:   f.platforms,
		Status:      status,
		Vault:       v,
		CommandBuilder: func(manifestURL, ingestURL, streamKey string) string {
			return "sh -c 'sleep 30'"
		},
	})
	t.Cleanup(supervisor.StopAll)

	opts := &Options{
		AuthUsername:  "admin",
		AuthPassword:  "hunter2",
		Detector:      detector,
		InfoStore:     f.info,
		Platforms:     f.platforms,
		Supervisor:    supervisor,
		Vault:         v,
		EventBus:      events.New(),
		RelayBasePath: "/live/hls",
	}
	for _, mod := range mods {
		mod(opts)
	}
	f.server = NewServer(opts)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:hunter2")))
	}
	rec := httptest.NewRecorder()
	f.server.GetMux().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndVersionArePublic(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/version", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLiveStatus(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("offline", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/live", "", false)
		require.Equal(t, http.StatusOK, rec.Code)

		var data models.LiveStatusData
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
		assert.False(t, data.IsLive)
		assert.Empty(t, data.HLSURL, "offline status must not advertise a playback URL")
	})

	t.Run("live", func(t *testing.T) {
		f.live = true
		rec := f.do(t, http.MethodGet, "/api/live", "", false)
		require.Equal(t, http.StatusOK, rec.Code)

		var data models.LiveStatusData
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
		assert.True(t, data.IsLive)
		assert.Equal(t, "/live/hls/index.m3u8", data.HLSURL)
		assert.NotEmpty(t, data.StartedAt)
	})
}

func TestUpdateLiveInfo(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("requires auth", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/api/live", `{"title":"Sunday Service"}`, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("partial update", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/api/live", `{"title":"Sunday Service"}`, true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Sunday Service", f.info.Get().Title)

		rec = f.do(t, http.MethodPatch, "/api/live", `{"description":"Join us"}`, true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Sunday Service", f.info.Get().Title)
		assert.Equal(t, "Join us", f.info.Get().Description)
	})

	t.Run("liveness is not settable", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/api/live", `{"is_live":true}`, true)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestPlatformMasking(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/platforms/youtube",
		`{"enabled":true,"stream_key":"super-secret-key-9876"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/platforms", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "super-secret-key-9876", "plaintext secret must never leave the server")

	var data models.PlatformListData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.Equal(t, 2, data.Count)
	assert.Equal(t, "****9876", data.Platforms[0].StreamKey)

	stored, _ := f.platforms.Get(restream.PlatformYouTube)
	assert.True(t, f.vault.IsEncrypted(stored.StreamKey), "stored value must be ciphertext")
}

func TestPlatformWriteSkip(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/platforms/youtube", `{"stream_key":"original-key-1234"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	before, _ := f.platforms.Get(restream.PlatformYouTube)

	// Sending the masked display value back leaves the secret untouched.
	rec = f.do(t, http.MethodPatch, "/api/platforms/youtube", `{"enabled":true,"stream_key":"****1234"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	after, _ := f.platforms.Get(restream.PlatformYouTube)
	assert.Equal(t, before.StreamKey, after.StreamKey)
	assert.True(t, after.Enabled, "non-secret fields still update")

	// A fresh plaintext value replaces the ciphertext.
	rec = f.do(t, http.MethodPatch, "/api/platforms/youtube", `{"stream_key":"rotated-key-5678"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated, _ := f.platforms.Get(restream.PlatformYouTube)
	assert.NotEqual(t, after.StreamKey, rotated.StreamKey)

	plaintext, err := f.vault.Decrypt(rotated.StreamKey)
	require.NoError(t, err)
	assert.Equal(t, "rotated-key-5678", plaintext)
}

func TestPlatformUnknown(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPatch, "/api/platforms/twitch", `{"enabled":true}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestreamEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("status list", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/restream", "", true)
		require.Equal(t, http.StatusOK, rec.Code)

		var data models.RestreamListData
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
		require.Equal(t, 2, data.Count)
		for _, r := range data.Restreams {
			assert.Equal(t, restream.StatusIdle, r.Status)
		}
	})

	t.Run("start rejects unconfigured platform", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/restream/start", `{"platform_id":"youtube"}`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("start and stop one platform", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/api/platforms/youtube",
			`{"enabled":true,"stream_key":"key-1234"}`, true)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/restream/start", `{"platform_id":"youtube"}`, true)
		require.Equal(t, http.StatusOK, rec.Code)

		var data models.RestreamListData
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
		assert.Equal(t, restream.StatusActive, data.Restreams[0].Status)

		rec = f.do(t, http.MethodPost, "/api/restream/stop", `{"platform_id":"youtube"}`, true)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("actions require auth", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/restream/start", `{}`, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRelayMountFollowsBasePath(t *testing.T) {
	relay := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
	})
	f := newAPIFixture(t, func(opts *Options) {
		opts.RelayBasePath = "/proxy/hls/"
		opts.RelayHandler = relay
	})

	// The trailing slash is normalized away and the handler is mounted
	// under the configured prefix, not the default one.
	rec := f.do(t, http.MethodGet, "/proxy/hls/index.m3u8", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#EXTM3U\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/live/hls/index.m3u8", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The live status reports playback URLs under the same prefix.
	f.live = true
	rec = f.do(t, http.MethodGet, "/api/live", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var data models.LiveStatusData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "/proxy/hls/index.m3u8", data.HLSURL)
}
