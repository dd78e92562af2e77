package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shell-bridge/backend/internal/dispatch"
	"github.com/shell-bridge/backend/internal/ws"
)

// InfoHandler serves server metadata and liveness endpoints.
type InfoHandler struct {
	name       string
	version    string
	dispatcher *dispatch.Dispatcher
	registry   *ws.Registry
}

// NewInfoHandler creates an InfoHandler reporting the given identity.
func NewInfoHandler(name, version string, d *dispatch.Dispatcher, reg *ws.Registry) *InfoHandler {
	return &InfoHandler{name: name, version: version, dispatcher: d, registry: reg}
}

// Index handles GET /, describing the server and the methods it speaks.
func (h *InfoHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    h.name,
		"version": h.version,
		"status":  "running",
		"endpoints": gin.H{
			"rpc":    "/rpc",
			"health": "/health",
		},
		"methods": h.dispatcher.Methods(),
	})
}

// Health handles GET /health.
func (h *InfoHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"channels": h.registry.Count(),
	})
}

// RegisterRoutes registers the metadata routes on a Gin router.
func (h *InfoHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Index)
	r.GET("/health", h.Health)
}
