// Package restream maintains one encoder process per enabled downstream
// platform, republishing the live feed to each platform's RTMP ingest.
package restream

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chapelmedia/broadcastd/internal/events"
	"github.com/chapelmedia/broadcastd/internal/metrics"
	"github.com/chapelmedia/broadcastd/internal/process"
	"github.com/chapelmedia/broadcastd/internal/vault"
)

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultKillTimeout     = 5 * time.Second
)

// handle tracks one running encoder. The stopping flag distinguishes a
// deliberate stop from a crash when the exit is observed.
type handle struct {
	proc     *process.Process
	stopping bool
}

// Supervisor owns the per-platform encoder lifecycle: spawn on start,
// observe exits, persist status transitions. Exits are never retried
// automatically; restarting is an operator action.
type Supervisor struct {
	manifestURL string
	platforms   *PlatformStore
	status      *StatusStore
	vault       *vault.Vault
	bus         *events.Bus
	clock       clockwork.Clock
	logger      *slog.Logger
	procLogger  *slog.Logger

	gracefulTimeout time.Duration
	killTimeout     time.Duration
	buildCommand    func(manifestURL, ingestURL, streamKey string) string

	mu      sync.Mutex
	handles map[string]*handle
	wg      sync.WaitGroup
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	ManifestURL     string
	Platforms       *PlatformStore
	Status          *StatusStore
	Vault           *vault.Vault
	Bus             *events.Bus
	Clock           clockwork.Clock
	Logger          *slog.Logger
	EncoderLogger   *slog.Logger
	GracefulTimeout time.Duration
	KillTimeout     time.Duration

	// CommandBuilder overrides the encoder command line, used by tests to
	// substitute a stub process.
	CommandBuilder func(manifestURL, ingestURL, streamKey string) string
}

// NewSupervisor creates a restream supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	procLogger := opts.EncoderLogger
	if procLogger == nil {
		procLogger = logger
	}
	graceful := opts.GracefulTimeout
	if graceful <= 0 {
		graceful = defaultGracefulTimeout
	}
	kill := opts.KillTimeout
	if kill <= 0 {
		kill = defaultKillTimeout
	}
	builder := opts.CommandBuilder
	if builder == nil {
		builder = BuildCommand
	}

	return &Supervisor{
		manifestURL:     opts.ManifestURL,
		platforms:       opts.Platforms,
		status:          opts.Status,
		vault:           opts.Vault,
		bus:             opts.Bus,
		clock:           clock,
		logger:          logger,
		procLogger:      procLogger,
		gracefulTimeout: graceful,
		killTimeout:     kill,
		buildCommand:    builder,
		handles:         make(map[string]*handle),
	}
}

// StartAll runs the start protocol for every enabled platform that has a
// stream key configured. Platforms that are already running are skipped.
func (s *Supervisor) StartAll() {
	for _, p := range s.platforms.List() {
		if !p.Enabled || p.StreamKey == "" {
			continue
		}
		if err := s.Start(p.ID); err != nil {
			s.logger.Error("Failed to start restream", "platform", p.ID, "error", err)
		}
	}
}

// Start spawns the encoder for one platform. Starting a platform that is
// already running is a no-op.
func (s *Supervisor) Start(platformID string) error {
	p, ok := s.platforms.Get(platformID)
	if !ok {
		return fmt.Errorf("unknown platform %q", platformID)
	}
	if !p.Enabled {
		return fmt.Errorf("platform %q is disabled", platformID)
	}
	if p.StreamKey == "" {
		return fmt.Errorf("platform %q has no stream key", platformID)
	}

	s.mu.Lock()
	if _, running := s.handles[platformID]; running {
		s.mu.Unlock()
		s.logger.Debug("Restream already running", "platform", platformID)
		return nil
	}

	// Decrypt only for the duration of command construction.
	streamKey, err := s.vault.Decrypt(p.StreamKey)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to decrypt stream key for %q: %w", platformID, err)
	}
	command := s.buildCommand(s.manifestURL, p.IngestURL(), streamKey)

	proc := process.New(platformID, command, s.logger)
	proc.SetLogParser(s.procLogger, ParseEncoderLine)
	proc.SetGraceWindow(s.gracefulTimeout, s.killTimeout)

	h := &handle{proc: proc}
	s.handles[platformID] = h
	s.mu.Unlock()

	now := s.clock.Now()
	if err := s.status.SetActive(platformID, now); err != nil {
		s.logger.Error("Failed to persist restream status", "platform", platformID, "error", err)
	}
	s.publish(platformID, StatusActive, "")
	s.logger.Info("Restream started", "platform", platformID, "target", p.IngestURL())

	s.wg.Add(1)
	go s.observe(platformID, h)
	return nil
}

// observe blocks on the encoder and maps its exit to a persisted status.
func (s *Supervisor) observe(platformID string, h *handle) {
	defer s.wg.Done()

	exitCode, runErr := h.proc.Run()

	s.mu.Lock()
	stopping := h.stopping
	delete(s.handles, platformID)
	s.mu.Unlock()

	now := s.clock.Now()
	switch {
	case stopping:
		// A deliberate stop is never a failure, whatever the exit code.
		if err := s.status.SetIdle(platformID, now); err != nil {
			s.logger.Error("Failed to persist restream status", "platform", platformID, "error", err)
		}
		s.publish(platformID, StatusIdle, "")
		s.logger.Info("Restream stopped", "platform", platformID)

	case runErr != nil:
		msg := fmt.Sprintf("failed to start encoder: %v", runErr)
		if err := s.status.SetError(platformID, now, msg); err != nil {
			s.logger.Error("Failed to persist restream status", "platform", platformID, "error", err)
		}
		s.publish(platformID, StatusError, msg)

	case exitCode == 0:
		if err := s.status.SetIdle(platformID, now); err != nil {
			s.logger.Error("Failed to persist restream status", "platform", platformID, "error", err)
		}
		s.publish(platformID, StatusIdle, "")
		s.logger.Info("Restream finished", "platform", platformID)

	default:
		msg := fmt.Sprintf("encoder exited with code %d", exitCode)
		if err := s.status.SetError(platformID, now, msg); err != nil {
			s.logger.Error("Failed to persist restream status", "platform", platformID, "error", err)
		}
		s.publish(platformID, StatusError, msg)
		s.logger.Warn("Restream failed", "platform", platformID, "exit_code", exitCode)
	}
}

// Stop requests graceful termination of one platform's encoder and waits
// for the exit to be observed. Stopping a platform that is not running is
// a no-op.
func (s *Supervisor) Stop(platformID string) {
	s.mu.Lock()
	h, ok := s.handles[platformID]
	if ok {
		h.stopping = true
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	h.proc.Shutdown()
}

// StopAll stops every running encoder and blocks until all exits have been
// observed and persisted.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	for _, h := range s.handles {
		h.stopping = true
	}
	handles := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.proc.Shutdown()
	}
	s.wg.Wait()
}

// Running reports whether a platform currently has a live handle.
func (s *Supervisor) Running(platformID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[platformID]
	return ok
}

// Statuses returns the persisted status records for all platforms.
func (s *Supervisor) Statuses() []StatusRecord {
	return s.status.List()
}

func (s *Supervisor) publish(platformID, status, errMsg string) {
	metrics.RestreamTransitions.WithLabelValues(platformID, status).Inc()
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.RestreamStateChangedEvent{
		PlatformID: platformID,
		Status:     status,
		Error:      errMsg,
		Timestamp:  s.clock.Now().Format(time.RFC3339),
	})
}
