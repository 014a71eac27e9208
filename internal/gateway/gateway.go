// Package gateway is the realtime messaging fan-out layer. Clients connect
// over a websocket with a bearer token, join channels subject to
// per-channel authorization, and exchange messages that are persisted
// through an external store before delivery.
package gateway

import "context"

// Subject is an authenticated connection identity.
type Subject struct {
	ID   string
	Role string
}

// Authorizer answers the gateway's identity and permission questions.
// Channel permissions are asked again on every join and send, never cached
// from handshake time.
type Authorizer interface {
	// Authenticate resolves a bearer token to a subject.
	Authenticate(ctx context.Context, token string) (Subject, error)

	// CanView reports whether the subject may subscribe to the channel.
	CanView(ctx context.Context, subject Subject, channelID string) (bool, error)

	// CanPost reports whether the subject may post to the channel. For
	// broadcast channels this consults the channel's per-subject admin
	// flag, not the subject's global role.
	CanPost(ctx context.Context, subject Subject, channelID string) (bool, error)
}

// Message is a persisted chat message as returned by the store.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	SentAt    string `json:"sent_at"`
}

// MessageStore persists messages before fan-out.
type MessageStore interface {
	SaveMessage(ctx context.Context, channelID, senderID, content string) (Message, error)
}
