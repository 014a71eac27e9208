package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chapelmedia/broadcastd/internal/events"
)

const defaultScanInterval = 30 * time.Second

// Source yields reminders that are due for delivery.
type Source interface {
	Due(now time.Time) []Reminder
	MarkDispatched(id string, at time.Time) error
}

// Broadcaster fans a frame out to a channel's subscribers. Satisfied by the
// gateway hub.
type Broadcaster interface {
	Broadcast(channelID string, data []byte)
}

// Dispatcher scans the source on a fixed interval and broadcasts each due
// reminder once.
type Dispatcher struct {
	source      Source
	broadcaster Broadcaster
	interval    time.Duration
	clock       clockwork.Clock
	bus         *events.Bus
	logger      *slog.Logger
}

// NewDispatcher creates a reminder dispatcher.
func NewDispatcher(source Source, broadcaster Broadcaster, interval time.Duration, clock clockwork.Clock, bus *events.Bus, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		source:      source,
		broadcaster: broadcaster,
		interval:    interval,
		clock:       clock,
		bus:         bus,
		logger:      logger,
	}
}

// Run scans until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			d.Scan()
		}
	}
}

// Scan dispatches every reminder that is currently due.
func (d *Dispatcher) Scan() {
	now := d.clock.Now()
	for _, r := range d.source.Due(now) {
		frame, err := json.Marshal(map[string]any{
			"type":       "reminder",
			"channel_id": r.ChannelID,
			"reminder": map[string]string{
				"id":    r.ID,
				"title": r.Title,
				"body":  r.Body,
			},
		})
		if err != nil {
			d.logger.Error("Failed to encode reminder", "id", r.ID, "error", err)
			continue
		}

		// Mark before broadcasting: a delivery skipped by a crash is
		// preferable to a reminder repeating every scan.
		if err := d.source.MarkDispatched(r.ID, now); err != nil {
			d.logger.Error("Failed to mark reminder dispatched", "id", r.ID, "error", err)
			continue
		}

		d.broadcaster.Broadcast(r.ChannelID, frame)
		d.logger.Info("Reminder dispatched", "id", r.ID, "channel", r.ChannelID, "title", r.Title)
		if d.bus != nil {
			d.bus.Publish(events.ReminderDispatchedEvent{
				ChannelID: r.ChannelID,
				Title:     r.Title,
				Timestamp: now.Format(time.RFC3339),
			})
		}
	}
}
