package restream

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chapelmedia/broadcastd/internal/vault"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type supervisorFixture struct {
	sup     *Supervisor
	status  *StatusStore
	command string
}

// newFixture builds a supervisor whose encoder is replaced by the given
// shell command, with the youtube platform enabled and keyed.
func newFixture(t *testing.T, command string) *supervisorFixture {
	t.Helper()
	dir := t.TempDir()

	v, err := vault.New(testKeyHex)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	encrypted, err := v.Encrypt("live-stream-key-1234")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	platforms := NewPlatformStore(filepath.Join(dir, "platforms.toml"))
	if err := platforms.Load(); err != nil {
		t.Fatalf("Load platforms: %v", err)
	}
	enabled := true
	if _, err := platforms.Update(PlatformYouTube, PlatformUpdate{Enabled: &enabled, StreamKey: &encrypted}); err != nil {
		t.Fatalf("Update platform: %v", err)
	}

	status := NewStatusStore(filepath.Join(dir, "status.toml"))
	if err := status.Load(); err != nil {
		t.Fatalf("Load status: %v", err)
	}

	f := &supervisorFixture{status: status, command: command}
	f.sup = NewSupervisor(SupervisorOptions{
		ManifestURL:     "http://127.0.0.1:8888/live/index.m3u8",
		Platforms:       platforms,
		Status:          status,
		Vault:           v,
		Logger:          slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		GracefulTimeout: time.Second,
		KillTimeout:     time.Second,
		CommandBuilder: func(manifestURL, ingestURL, streamKey string) string {
			return f.command
		},
	})
	return f
}

// waitForStatus polls until the platform reaches the wanted status.
func waitForStatus(t *testing.T, store *StatusStore, id, want string) StatusRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := store.Get(id); ok && r.Status == want {
			return r
		}
		time.Sleep(20 * time.Millisecond)
	}
	r, _ := store.Get(id)
	t.Fatalf("platform %s never reached status %q, last was %q (%s)", id, want, r.Status, r.ErrorMessage)
	return StatusRecord{}
}

func TestExitMapping(t *testing.T) {
	t.Run("clean exit goes idle", func(t *testing.T) {
		f := newFixture(t, "sh -c 'exit 0'")
		if err := f.sup.Start(PlatformYouTube); err != nil {
			t.Fatalf("Start: %v", err)
		}
		r := waitForStatus(t, f.status, PlatformYouTube, StatusIdle)
		if r.ErrorMessage != "" {
			t.Errorf("expected no error message, got %q", r.ErrorMessage)
		}
		if r.StoppedAt == nil {
			t.Error("expected stoppedAt to be set")
		}
	})

	t.Run("non-zero exit goes error", func(t *testing.T) {
		f := newFixture(t, "sh -c 'exit 3'")
		if err := f.sup.Start(PlatformYouTube); err != nil {
			t.Fatalf("Start: %v", err)
		}
		r := waitForStatus(t, f.status, PlatformYouTube, StatusError)
		if !strings.Contains(r.ErrorMessage, "3") {
			t.Errorf("expected exit code in message, got %q", r.ErrorMessage)
		}
	})

	t.Run("spawn failure goes error", func(t *testing.T) {
		f := newFixture(t, "/nonexistent/encoder-binary")
		if err := f.sup.Start(PlatformYouTube); err != nil {
			t.Fatalf("Start: %v", err)
		}
		r := waitForStatus(t, f.status, PlatformYouTube, StatusError)
		if r.ErrorMessage == "" {
			t.Error("expected a non-empty error message")
		}
	})
}

func TestIdempotentStart(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawns")
	f := newFixture(t, fmt.Sprintf("sh -c 'echo spawn >> %s; sleep 30'", marker))

	if err := f.sup.Start(PlatformYouTube); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := f.sup.Start(PlatformYouTube); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	waitForStatus(t, f.status, PlatformYouTube, StatusActive)

	if !f.sup.Running(PlatformYouTube) {
		t.Fatal("expected a running handle")
	}
	f.sup.StopAll()

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if got := strings.Count(string(data), "spawn"); got != 1 {
		t.Errorf("expected exactly 1 spawn, got %d", got)
	}
}

func TestStartRequiresEnabledAndKeyed(t *testing.T) {
	f := newFixture(t, "sh -c 'sleep 30'")

	if err := f.sup.Start(PlatformFacebook); err == nil {
		t.Error("expected error starting a disabled platform")
	}
	if err := f.sup.Start("twitch"); err == nil {
		t.Error("expected error starting an unknown platform")
	}
}

func TestStopAlwaysGoesIdle(t *testing.T) {
	// The stub exits non-zero on SIGINT; a deliberate stop must still be
	// recorded as idle.
	f := newFixture(t, "sh -c 'trap \"exit 7\" INT TERM; while true; do sleep 0.1; done'")

	if err := f.sup.Start(PlatformYouTube); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, f.status, PlatformYouTube, StatusActive)

	f.sup.Stop(PlatformYouTube)
	r := waitForStatus(t, f.status, PlatformYouTube, StatusIdle)
	if r.ErrorMessage != "" {
		t.Errorf("deliberate stop must clear the error message, got %q", r.ErrorMessage)
	}
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t, "sh -c 'sleep 0.2; exit 3'")

	// Crash while streaming: active, then error with a message.
	if err := f.sup.Start(PlatformYouTube); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, f.status, PlatformYouTube, StatusActive)
	r := waitForStatus(t, f.status, PlatformYouTube, StatusError)
	if r.ErrorMessage == "" {
		t.Fatal("expected an error message after the crash")
	}

	// Operator restarts with a healthy encoder, then stops it.
	f.command = "sh -c 'sleep 30'"
	if err := f.sup.Start(PlatformYouTube); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitForStatus(t, f.status, PlatformYouTube, StatusActive)

	f.sup.Stop(PlatformYouTube)
	waitForStatus(t, f.status, PlatformYouTube, StatusIdle)
}
