// Package ws provides the channel layer: one long-lived WebSocket connection
// per client, with a registry used for fan-out and cleanup.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Requests can carry file
	// contents, so this is generous.
	maxMessageSize = 4 * 1024 * 1024
)

// ErrChannelClosed is returned when sending on a closed channel.
var ErrChannelClosed = errors.New("channel is closed")

// Channel is one live bidirectional connection between a client and the
// server. Responses and errors are queued on a buffered send channel and
// written by a single write pump, so handlers on any goroutine may send
// concurrently.
type Channel struct {
	id   string
	conn *websocket.Conn
	log  *zap.SugaredLogger

	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewChannel wraps an upgraded WebSocket connection.
func NewChannel(conn *websocket.Conn, log *zap.SugaredLogger) *Channel {
	id := uuid.New().String()
	return &Channel{
		id:   id,
		conn: conn,
		log:  log.With("channel", id),
		send: make(chan []byte, 256),
	}
}

// ID returns the channel's identifier.
func (c *Channel) ID() string {
	return c.id
}

// Send queues an encoded frame for delivery. Frames are dropped with an
// error once the channel is closed; a full send buffer closes the channel,
// mirroring how a stalled peer is handled.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return ErrChannelClosed
	}
}

// SendMessage encodes and queues a message envelope.
func (c *Channel) SendMessage(m *protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// SendResponse sends a response envelope addressed to the given request id.
// This implements protocol.ResponseWriter.
func (c *Channel) SendResponse(id string, result any) error {
	m, err := protocol.NewResponse(id, result)
	if err != nil {
		return err
	}
	return c.SendMessage(m)
}

// SendError sends an error envelope addressed to the given request id.
func (c *Channel) SendError(id string, code int, message string) error {
	return c.SendMessage(protocol.NewError(id, code, message))
}

// Close marks the channel closed and stops the write pump. Closing a channel
// never touches process or session state.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Channel) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed reports whether the channel has been closed.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// OnMessage is called for each well-formed message read off the channel.
type OnMessage func(msg *protocol.Message, ch *Channel)

// Serve runs the channel's read and write pumps. It blocks until the peer
// disconnects or the channel is closed. Malformed frames are dropped
// silently; the channel is never terminated over bad input.
func (c *Channel) Serve(onMessage OnMessage) {
	go c.writePump()
	c.readPump(onMessage)
}

// readPump pumps frames from the WebSocket connection into the decoder and
// the message callback.
func (c *Channel) readPump(onMessage OnMessage) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debugf("read error: %v", err)
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are dropped, not answered.
			c.log.Debugf("dropping frame: %v", err)
			continue
		}

		onMessage(msg, c)
	}
}

// writePump pumps queued frames to the WebSocket connection and keeps the
// connection alive with periodic pings.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
