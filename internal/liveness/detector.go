// Package liveness infers whether the upstream media server is producing a
// live feed by polling its HLS manifest. Poll results are cached for a short
// TTL so browser status polling never hammers the upstream, and live/offline
// transitions drive the persisted session start timestamp.
package liveness

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chapelmedia/broadcastd/internal/events"
	"github.com/chapelmedia/broadcastd/internal/metrics"
)

// State is the detector's view of the upstream feed.
type State string

// Detector states. Unknown exists only before the first completed poll.
const (
	StateUnknown State = "unknown"
	StateLive    State = "live"
	StateOffline State = "offline"
)

// Status is a point-in-time liveness snapshot.
type Status struct {
	IsLive    bool
	CheckedAt time.Time
}

const (
	defaultTTL     = 5 * time.Second
	defaultTimeout = 4 * time.Second
)

// Detector polls the upstream manifest with a short-lived cache. At most one
// upstream poll is in flight at a time; callers arriving during a poll
// observe the previous cached value without blocking.
type Detector struct {
	manifestURL string
	ttl         time.Duration
	client      *http.Client
	clock       clockwork.Clock
	store       *InfoStore
	bus         *events.Bus
	logger      *slog.Logger

	mu        sync.Mutex
	polling   bool
	state     State
	checkedAt time.Time
}

// Options configures a Detector.
type Options struct {
	ManifestURL string
	TTL         time.Duration
	Timeout     time.Duration
	Store       *InfoStore
	Bus         *events.Bus
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// NewDetector creates a liveness detector.
func NewDetector(opts Options) *Detector {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		manifestURL: opts.ManifestURL,
		ttl:         ttl,
		client:      &http.Client{Timeout: timeout},
		clock:       clock,
		store:       opts.Store,
		bus:         opts.Bus,
		logger:      logger,
		state:       StateUnknown,
	}
}

// Status returns the current liveness, polling upstream only when the cache
// has expired and no other poll is already in flight.
func (d *Detector) Status(ctx context.Context) Status {
	d.mu.Lock()
	if d.polling || (d.state != StateUnknown && d.clock.Since(d.checkedAt) < d.ttl) {
		status := Status{IsLive: d.state == StateLive, CheckedAt: d.checkedAt}
		d.mu.Unlock()
		return status
	}
	d.polling = true
	d.mu.Unlock()

	isLive := d.probe(ctx)
	now := d.clock.Now()

	d.mu.Lock()
	prev := d.state
	if isLive {
		d.state = StateLive
	} else {
		d.state = StateOffline
	}
	d.checkedAt = now
	d.polling = false
	status := Status{IsLive: isLive, CheckedAt: now}
	d.mu.Unlock()

	d.recordTransition(prev, status)
	return status
}

// probe fetches the manifest. Any error or non-2xx response means offline.
func (d *Detector) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.manifestURL, nil)
	if err != nil {
		metrics.LivenessPolls.WithLabelValues("error").Inc()
		return false
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("Manifest poll failed", "error", err)
		metrics.LivenessPolls.WithLabelValues("error").Inc()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.LivenessPolls.WithLabelValues("offline").Inc()
		return false
	}
	metrics.LivenessPolls.WithLabelValues("live").Inc()
	return true
}

// recordTransition persists session start bookkeeping and publishes the
// transition event. Only an actual flip touches the stored timestamp.
func (d *Detector) recordTransition(prev State, current Status) {
	next := StateOffline
	if current.IsLive {
		next = StateLive
	}
	if prev == next {
		return
	}

	if current.IsLive {
		d.logger.Info("Upstream feed went live")
		if d.store != nil {
			if err := d.store.SetStartedAt(current.CheckedAt); err != nil {
				d.logger.Warn("Failed to persist session start", "error", err)
			}
		}
	} else {
		if prev == StateLive {
			d.logger.Info("Upstream feed went offline")
		}
		if d.store != nil {
			if err := d.store.ClearStartedAt(); err != nil {
				d.logger.Warn("Failed to clear session start", "error", err)
			}
		}
	}

	if d.bus != nil {
		d.bus.Publish(events.LiveStateChangedEvent{
			IsLive:    current.IsLive,
			Timestamp: current.CheckedAt.Format(time.RFC3339),
		})
	}
}
