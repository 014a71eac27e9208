package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chapelmedia/broadcastd/internal/metrics"
)

const maxMessageSize = 4096

// Handler upgrades websocket connections, authenticates them, and runs the
// per-connection read loop. Authorization checks and message persistence
// happen here, on the reader goroutine, so the hub loop never blocks on
// external calls.
type Handler struct {
	hub      *Hub
	auth     Authorizer
	store    MessageStore
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(hub *Hub, auth Authorizer, store MessageStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		auth:   auth,
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The page is served cross-origin from the church site.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP performs the handshake. The bearer token travels as a query
// parameter because browsers cannot set headers on websocket connects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		closeWith(ws, CloseNoToken, "missing token")
		return
	}

	subject, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		h.logger.Info("Rejected websocket credential", "error", err)
		closeWith(ws, CloseInvalidToken, "invalid token")
		return
	}

	c := newClient(ws, subject)
	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		h.hub.pong(c)
		return nil
	})

	h.hub.register(c)
	defer h.hub.unregister(c)

	h.readLoop(r, c)
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeTimeout)
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	ws.Close()
}

func (h *Handler) readLoop(r *http.Request, c *client) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket read error", "subject", c.subject.ID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			metrics.GatewayMessages.WithLabelValues("unknown", "malformed").Inc()
			c.send(errorFrame("invalid message"))
			continue
		}

		switch msg.Type {
		case KindJoinChannel:
			h.handleJoin(r, c, msg)
		case KindLeaveChannel:
			metrics.GatewayMessages.WithLabelValues(KindLeaveChannel, "ok").Inc()
			h.hub.leave(c, msg.ChannelID)
		case KindSendMessage:
			h.handleSend(r, c, msg)
		default:
			metrics.GatewayMessages.WithLabelValues("unknown", "malformed").Inc()
			c.send(errorFrame("unknown message type"))
		}
	}
}

// handleJoin re-verifies channel authorization on every join rather than
// trusting handshake-time state.
func (h *Handler) handleJoin(r *http.Request, c *client, msg clientMessage) {
	if msg.ChannelID == "" {
		metrics.GatewayMessages.WithLabelValues(KindJoinChannel, "malformed").Inc()
		c.send(errorFrame("channel_id is required"))
		return
	}

	ok, err := h.auth.CanView(r.Context(), c.subject, msg.ChannelID)
	if err != nil {
		h.logger.Error("Channel authorization check failed", "subject", c.subject.ID, "channel", msg.ChannelID, "error", err)
		metrics.GatewayMessages.WithLabelValues(KindJoinChannel, "error").Inc()
		c.send(errorFrame("authorization check failed"))
		return
	}
	if !ok {
		metrics.GatewayMessages.WithLabelValues(KindJoinChannel, "denied").Inc()
		c.send(errorFrame("not authorized for channel"))
		return
	}

	metrics.GatewayMessages.WithLabelValues(KindJoinChannel, "ok").Inc()
	h.hub.join(c, msg.ChannelID)
}

// handleSend validates membership and posting policy, persists the message,
// then fans it out. A rejected message produces a local error reply and no
// deliveries at all.
func (h *Handler) handleSend(r *http.Request, c *client, msg clientMessage) {
	if msg.ChannelID == "" || msg.Content == "" {
		metrics.GatewayMessages.WithLabelValues(KindSendMessage, "malformed").Inc()
		c.send(errorFrame("channel_id and content are required"))
		return
	}

	ok, err := h.auth.CanView(r.Context(), c.subject, msg.ChannelID)
	if err != nil {
		h.logger.Error("Channel authorization check failed", "subject", c.subject.ID, "channel", msg.ChannelID, "error", err)
		metrics.GatewayMessages.WithLabelValues(KindSendMessage, "error").Inc()
		c.send(errorFrame("authorization check failed"))
		return
	}
	if !ok {
		metrics.GatewayMessages.WithLabelValues(KindSendMessage, "denied").Inc()
		c.send(errorFrame("not a member of channel"))
		return
	}
	ok, err = h.auth.CanPost(r.Context(), c.subject, msg.ChannelID)
	if err != nil {
		h.logger.Error("Posting policy check failed", "subject", c.subject.ID, "channel", msg.ChannelID, "error", err)
		metrics.GatewayMessages.WithLabelValues(KindSendMessage, "error").Inc()
		c.send(errorFrame("authorization check failed"))
		return
	}
	if !ok {
		metrics.GatewayMessages.WithLabelValues(KindSendMessage, "denied").Inc()
		c.send(errorFrame("not allowed to post to channel"))
		return
	}

	saved, err := h.store.SaveMessage(r.Context(), msg.ChannelID, c.subject.ID, msg.Content)
	if err != nil {
		h.logger.Error("Failed to persist message", "subject", c.subject.ID, "channel", msg.ChannelID, "error", err)
		metrics.GatewayMessages.WithLabelValues(KindSendMessage, "error").Inc()
		c.send(errorFrame("failed to save message"))
		return
	}

	metrics.GatewayMessages.WithLabelValues(KindSendMessage, "ok").Inc()
	h.hub.Broadcast(msg.ChannelID, encodeServerMessage(serverMessage{
		Type:      KindNewMessage,
		ChannelID: msg.ChannelID,
		Message:   saved,
	}))
}
