package gateway

import "encoding/json"

// Client message kinds.
const (
	KindJoinChannel  = "join_channel"
	KindLeaveChannel = "leave_channel"
	KindSendMessage  = "send_message"
)

// Server message kinds.
const (
	KindJoinedChannel = "joined_channel"
	KindNewMessage    = "new_message"
	KindError         = "error"
)

// Close codes for handshake failures. Distinct codes let clients tell a
// missing credential apart from a rejected one.
const (
	CloseNoToken      = 4001
	CloseInvalidToken = 4003
)

// clientMessage is the envelope every inbound frame must decode to.
type clientMessage struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// serverMessage is the envelope for every outbound frame.
type serverMessage struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id,omitempty"`
	Message   any    `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

func encodeServerMessage(m serverMessage) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// The envelope only holds strings and store-provided structs;
		// a marshal failure here is a programming error.
		return []byte(`{"type":"error","error":"internal error"}`)
	}
	return data
}

func errorFrame(msg string) []byte {
	return encodeServerMessage(serverMessage{Type: KindError, Error: msg})
}
