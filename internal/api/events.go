package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/chapelmedia/broadcastd/internal/events"
)

// registerSSERoutes registers the admin event stream: liveness transitions,
// restream lifecycle changes, and reminder dispatches.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of liveness transitions, restream status changes, and reminder dispatches",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"live-state-changed":     events.LiveStateChangedEvent{},
		"restream-state-changed": events.RestreamStateChangedEvent{},
		"reminder-dispatched":    events.ReminderDispatchedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.LiveStateChangedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.RestreamStateChangedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.ReminderDispatchedEvent](s.options.EventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial snapshot so a fresh admin page renders without waiting
		// for the next transition.
		status := s.options.Detector.Status(ctx)
		if err := send.Data(events.LiveStateChangedEvent{
			IsLive:    status.IsLive,
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
