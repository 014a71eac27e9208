package events

// Event type constants for kelindar/event.
const (
	TypeLiveStateChanged uint32 = iota + 1
	TypeRestreamStateChanged
	TypeReminderDispatched
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// LiveStateChangedEvent is published when the liveness detector observes a
// transition between live and offline.
type LiveStateChangedEvent struct {
	IsLive    bool   `json:"is_live" doc:"Whether the upstream feed is live"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for LiveStateChangedEvent.
func (e LiveStateChangedEvent) Type() uint32 { return TypeLiveStateChanged }

// RestreamStateChangedEvent is published on every restream status transition:
// encoder started, exited cleanly, crashed, or was stopped by an operator.
type RestreamStateChangedEvent struct {
	PlatformID string `json:"platform_id" example:"youtube" doc:"Platform identifier"`
	Status     string `json:"status" example:"active" doc:"New status: idle, active, or error"`
	Error      string `json:"error,omitempty" doc:"Error message when status is error"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for RestreamStateChangedEvent.
func (e RestreamStateChangedEvent) Type() uint32 { return TypeRestreamStateChanged }

// ReminderDispatchedEvent is published when the reminder dispatcher fans a
// scheduled reminder out to a channel.
type ReminderDispatchedEvent struct {
	ChannelID string `json:"channel_id" doc:"Target channel"`
	Title     string `json:"title" doc:"Reminder title"`
	Timestamp string `json:"timestamp" doc:"Dispatch timestamp"`
}

// Type returns the event type identifier for ReminderDispatchedEvent.
func (e ReminderDispatchedEvent) Type() uint32 { return TypeReminderDispatched }

// LogEntryEvent carries a log entry to SSE log-tail clients.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"restream" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
