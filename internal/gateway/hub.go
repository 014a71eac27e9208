package gateway

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/chapelmedia/broadcastd/internal/metrics"
)

const defaultHeartbeatInterval = 30 * time.Second

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	client *client
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	client *client
}

func (cmdUnregister) hubCmd() {}

// cmdJoin is posted only after the reader goroutine has re-verified the
// subject's authorization for the channel.
type cmdJoin struct {
	client    *client
	channelID string
}

func (cmdJoin) hubCmd() {}

type cmdLeave struct {
	client    *client
	channelID string
}

func (cmdLeave) hubCmd() {}

type cmdBroadcast struct {
	channelID string
	data      []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdPong struct {
	client *client
}

func (cmdPong) hubCmd() {}

type cmdSubscriberCount struct {
	channelID string
	replyCh   chan int
}

func (cmdSubscriberCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Hub ---

// Hub owns the channel subscription index. All mutation happens on the
// single run loop, so the maps need no locking. Subscriptions are not
// persisted; reconnecting clients re-join.
type Hub struct {
	cmdCh    chan hubCmd
	done     chan struct{}
	conns    map[*client]struct{}
	channels map[string]map[*client]struct{}

	heartbeat time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewHub creates and starts a hub. The heartbeat interval bounds how long a
// silently dead connection can hold its subscriptions.
func NewHub(heartbeat time.Duration, clock clockwork.Clock, logger *slog.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		cmdCh:     make(chan hubCmd, 256),
		done:      make(chan struct{}),
		conns:     make(map[*client]struct{}),
		channels:  make(map[string]map[*client]struct{}),
		heartbeat: heartbeat,
		clock:     clock,
		logger:    logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case cmdRegister:
				h.handleRegister(c.client)
			case cmdUnregister:
				h.handleUnregister(c.client)
			case cmdJoin:
				h.handleJoin(c.client, c.channelID)
			case cmdLeave:
				h.handleLeave(c.client, c.channelID)
			case cmdBroadcast:
				h.handleBroadcast(c.channelID, c.data)
			case cmdPong:
				if _, ok := h.conns[c.client]; ok {
					c.client.alive = true
				}
			case cmdSubscriberCount:
				c.replyCh <- len(h.channels[c.channelID])
			case cmdStop:
				h.handleStop()
				return
			}
		case <-ticker.Chan():
			h.handleHeartbeat()
		}
	}
}

func (h *Hub) handleRegister(c *client) {
	h.conns[c] = struct{}{}
	metrics.GatewayConnections.Inc()
	h.logger.Debug("Connection registered", "conn", c.id, "subject", c.subject.ID, "total", len(h.conns))
}

func (h *Hub) handleUnregister(c *client) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	for channelID := range c.channels {
		h.removeFromChannel(c, channelID)
	}
	delete(h.conns, c)
	c.writer.stop()
	metrics.GatewayConnections.Dec()
	h.logger.Debug("Connection unregistered", "conn", c.id, "subject", c.subject.ID, "total", len(h.conns))
}

func (h *Hub) handleJoin(c *client, channelID string) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	subs, ok := h.channels[channelID]
	if !ok {
		subs = make(map[*client]struct{})
		h.channels[channelID] = subs
	}
	subs[c] = struct{}{}
	c.channels[channelID] = struct{}{}
	c.send(encodeServerMessage(serverMessage{Type: KindJoinedChannel, ChannelID: channelID}))
}

func (h *Hub) handleLeave(c *client, channelID string) {
	h.removeFromChannel(c, channelID)
	delete(c.channels, channelID)
}

// removeFromChannel drops the client from one channel's subscriber set,
// deleting the set the moment it becomes empty.
func (h *Hub) removeFromChannel(c *client, channelID string) {
	subs, ok := h.channels[channelID]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.channels, channelID)
	}
}

func (h *Hub) handleBroadcast(channelID string, data []byte) {
	var slow []*client
	for c := range h.channels[channelID] {
		if !c.send(data) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.logger.Warn("Disconnecting slow client", "subject", c.subject.ID, "channel", channelID)
		h.handleUnregister(c)
	}
}

// handleHeartbeat reaps connections that never answered the previous ping,
// then pings the survivors.
func (h *Hub) handleHeartbeat() {
	var dead []*client
	for c := range h.conns {
		if !c.alive {
			dead = append(dead, c)
			continue
		}
		c.alive = false
		deadline := time.Now().Add(writeTimeout)
		if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.logger.Info("Reaping unresponsive connection", "conn", c.id, "subject", c.subject.ID)
		metrics.GatewayReaped.Inc()
		h.handleUnregister(c)
	}
}

func (h *Hub) handleStop() {
	for c := range h.conns {
		for channelID := range c.channels {
			h.removeFromChannel(c, channelID)
		}
		delete(h.conns, c)
		c.writer.stop()
		metrics.GatewayConnections.Dec()
	}
	close(h.done)
}

// --- Public API (posts to the run loop) ---

// post delivers a command to the run loop. After Stop the loop is gone, so
// late senders (a reader goroutine unwinding, a reminder tick in flight)
// fall through instead of blocking on a channel nobody drains.
func (h *Hub) post(cmd hubCmd) {
	select {
	case h.cmdCh <- cmd:
	case <-h.done:
	}
}

func (h *Hub) register(c *client)   { h.post(cmdRegister{client: c}) }
func (h *Hub) unregister(c *client) { h.post(cmdUnregister{client: c}) }
func (h *Hub) pong(c *client)       { h.post(cmdPong{client: c}) }

func (h *Hub) join(c *client, channelID string)  { h.post(cmdJoin{client: c, channelID: channelID}) }
func (h *Hub) leave(c *client, channelID string) { h.post(cmdLeave{client: c, channelID: channelID}) }

// Broadcast fans a frame out to every subscriber of a channel, including
// system-originated messages such as reminders.
func (h *Hub) Broadcast(channelID string, data []byte) {
	h.post(cmdBroadcast{channelID: channelID, data: data})
}

// SubscriberCount reports the current size of a channel's subscriber set.
// A stopped hub has no subscribers.
func (h *Hub) SubscriberCount(channelID string) int {
	replyCh := make(chan int, 1)
	h.post(cmdSubscriberCount{channelID: channelID, replyCh: replyCh})
	select {
	case n := <-replyCh:
		return n
	case <-h.done:
		return 0
	}
}

// Stop disconnects every client and shuts the run loop down. Idempotent.
func (h *Hub) Stop() {
	h.post(cmdStop{})
}
