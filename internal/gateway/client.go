package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout  = 5 * time.Second
	sendQueueSize = 16
)

// client is one authenticated connection. The subject is immutable after
// the handshake; alive and channels are owned by the hub loop and must not
// be touched from any other goroutine.
type client struct {
	id      string
	ws      *websocket.Conn
	writer  *clientWriter
	subject Subject

	alive    bool
	channels map[string]struct{}
}

func newClient(ws *websocket.Conn, subject Subject) *client {
	return &client{
		id:       uuid.NewString(),
		ws:       ws,
		writer:   newClientWriter(ws),
		subject:  subject,
		alive:    true,
		channels: make(map[string]struct{}),
	}
}

// send enqueues a frame without blocking. A full queue reports false so the
// hub can disconnect the slow client instead of stalling fan-out.
func (c *client) send(data []byte) bool {
	select {
	case c.writer.sendCh <- data:
		return true
	default:
		return false
	}
}

// clientWriter serializes all data writes to one connection through a
// single goroutine.
type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			cw.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	cw.conn.Close()
}
