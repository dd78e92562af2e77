// Package dispatch routes incoming requests to registered method handlers.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/protocol"
)

// HandlerFunc handles one request. It must send exactly one response or
// error envelope addressed to the request's id on w.
type HandlerFunc func(ctx context.Context, req *protocol.Message, w protocol.ResponseWriter)

// Dispatcher maps method names to handlers. Handlers for distinct requests
// run concurrently, including requests from the same channel: a slow handler
// never blocks the read loop, and clients correlate by id rather than by
// arrival order.
type Dispatcher struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates an empty Dispatcher.
func New(log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		log:      log.Named("dispatch"),
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a method name to a handler. Registering the same name twice
// replaces the previous handler.
func (d *Dispatcher) Register(name string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatch routes a message. Non-request messages are ignored. An unknown
// method produces a 404 error addressed to the request id and nothing else.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *protocol.Message, w protocol.ResponseWriter) {
	if msg.Type != protocol.MessageTypeRequest {
		d.log.Debugf("ignoring %s message %s", msg.Type, msg.ID)
		return
	}

	d.mu.RLock()
	handler, ok := d.handlers[msg.Method]
	d.mu.RUnlock()

	if !ok {
		w.SendError(msg.ID, protocol.CodeNotFound, fmt.Sprintf("Method '%s' not found", msg.Method))
		return
	}

	go d.invoke(ctx, handler, msg, w)
}

// invoke runs a handler with a panic guard: a handler failure becomes a
// 500 error on the originating request id rather than escaping the channel.
func (d *Dispatcher) invoke(ctx context.Context, handler HandlerFunc, msg *protocol.Message, w protocol.ResponseWriter) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("handler for %s panicked: %v", msg.Method, r)
			w.SendError(msg.ID, protocol.CodeInternal, fmt.Sprintf("internal error in %s", msg.Method))
		}
	}()

	handler(ctx, msg, w)
}
