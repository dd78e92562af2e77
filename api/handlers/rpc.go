// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shell-bridge/backend/internal/dispatch"
	"github.com/shell-bridge/backend/internal/protocol"
	"github.com/shell-bridge/backend/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients connect from arbitrary origins in development.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RPCHandler upgrades HTTP connections to method-call channels.
type RPCHandler struct {
	log        *zap.SugaredLogger
	dispatcher *dispatch.Dispatcher
	registry   *ws.Registry
}

// NewRPCHandler creates an RPCHandler over the given dispatcher and
// channel registry.
func NewRPCHandler(log *zap.SugaredLogger, d *dispatch.Dispatcher, reg *ws.Registry) *RPCHandler {
	return &RPCHandler{log: log.Named("rpc"), dispatcher: d, registry: reg}
}

// Attach handles GET /rpc, upgrading the connection and serving method
// calls on it until the peer disconnects. Disconnection only unregisters
// the channel; processes and terminal sessions it started keep running.
func (h *RPCHandler) Attach(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("upgrade failed: %v", err)
		return
	}

	ch := ws.NewChannel(conn, h.log)
	h.registry.Add(ch)
	defer h.registry.Remove(ch)

	h.log.Infow("channel connected", "channel", ch.ID(), "remote", conn.RemoteAddr().String())
	// Dispatch on a background context, not the request's: work started by
	// a call must outlive the connection that issued it.
	ch.Serve(func(msg *protocol.Message, ch *ws.Channel) {
		h.dispatcher.Dispatch(context.Background(), msg, ch)
	})
	h.log.Infow("channel disconnected", "channel", ch.ID())
}

// RegisterRoutes registers the channel endpoint on a Gin router.
func (h *RPCHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/rpc", h.Attach)
}
