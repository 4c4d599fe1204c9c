package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"courier-relay/internal/metrics"
	"courier-relay/internal/router"
	"courier-relay/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades relay connections. Authentication happens
// in-band afterwards: the first useful frame a client sends is an
// identify event carrying its token, so the upgrade itself is open.
type WebSocketHandler struct {
	router    *router.Router
	heartbeat Heartbeats
	metrics   *metrics.Metrics
	logger    *WebSocketLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(r *router.Router, hb Heartbeats, m *metrics.Metrics, l *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		router:    r,
		heartbeat: hb,
		metrics:   m,
		logger:    NewWebSocketLogger(l),
	}
}

// Handle upgrades HTTP to WebSocket
func (h *WebSocketHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "", "", err)
		return
	}

	client := NewClient(conn, h.router, h.heartbeat, h.metrics, h.logger)
	client.Start()
}
