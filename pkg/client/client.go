// Package client is a Go client for the shell-bridge method channel. It
// dials the server's websocket endpoint, correlates responses to requests
// by id, and exposes the channel as a Call API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/shell-bridge/backend/internal/protocol"
)

const readLimit = 4 << 20

// RemoteError is an error envelope received from the server.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Client is a method-channel client. It is safe for concurrent use; calls
// issued concurrently are multiplexed over one connection.
type Client struct {
	log  *zap.SugaredLogger
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan *protocol.Message
	closed  bool

	done chan struct{}
}

// Options configures Dial.
type Options struct {
	// HTTPClient overrides the client used for the handshake.
	HTTPClient *http.Client

	// Logger receives connection-level debug output. Defaults to a no-op
	// logger.
	Logger *zap.SugaredLogger
}

// Dial connects to a channel endpoint, e.g. "ws://host:8080/rpc", and
// starts the response reader.
func Dial(ctx context.Context, url string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)

	c := &Client{
		log:     log.Named("client"),
		conn:    conn,
		pending: map[string]chan *protocol.Message{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop routes incoming frames to the pending call that issued them.
// It exits when the connection drops, failing every in-flight call.
func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var msg protocol.Message
		if err := wsjson.Read(context.Background(), c.conn, &msg); err != nil {
			c.log.Debugf("read loop exiting: %v", err)
			c.failAll()
			return
		}
		if msg.Type != protocol.MessageTypeResponse && msg.Type != protocol.MessageTypeError {
			c.log.Debugw("ignoring frame", "type", msg.Type)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if !ok {
			c.log.Debugw("response for unknown call", "id", msg.ID)
			continue
		}
		ch <- &msg
	}
}

func (c *Client) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call sends a request and waits for its response. The result is
// unmarshaled into out when out is non-nil. A server error envelope is
// returned as a *RemoteError.
func (c *Client) Call(ctx context.Context, method string, params map[string]any, out any) error {
	id := uuid.New().String()
	req := protocol.NewRequest(id, method, params)

	ch := make(chan *protocol.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return fmt.Errorf("connection closed waiting for %s", method)
		}
		if msg.Type == protocol.MessageTypeError {
			return &RemoteError{Code: msg.Error.Code, Message: msg.Error.Message}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(msg.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	}
}

// Close tears down the connection and fails any in-flight calls.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}
