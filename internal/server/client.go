package server

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"courier-relay/internal/metrics"
	"courier-relay/internal/router"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

const idleExpiry = 2 * pongWait

var (
	errConnClosed = errors.New("connection closed")
	errSendFull   = errors.New("send buffer full")
)

// Heartbeats refreshes advisory presence while a connection stays
// live. Optional; the registry alone decides routability.
type Heartbeats interface {
	Heartbeat(ctx context.Context, handle, deviceID string) error
}

// Client is one websocket connection. It implements registry.Conn:
// the write pump owns the socket for writes, Push hands frames to it
// without blocking, and Close asks both pumps to wind down.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	once    sync.Once
	session *router.Session

	router    *router.Router
	heartbeat Heartbeats
	metrics   *metrics.Metrics
	logger    *WebSocketLogger

	lastActivity atomic.Int64
}

func NewClient(conn *websocket.Conn, r *router.Router, hb Heartbeats, m *metrics.Metrics, l *WebSocketLogger) *Client {
	c := &Client{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		closed:    make(chan struct{}),
		router:    r,
		heartbeat: hb,
		metrics:   m,
		logger:    l,
	}
	c.session = router.NewSession(c, conn.RemoteAddr().String())
	c.lastActivity.Store(time.Now().UnixNano())
	return c
}

// Start runs both pumps. The caller returns immediately; the pumps
// own the connection from here.
func (c *Client) Start() {
	c.metrics.Connections.Inc()
	go c.writePump()
	go c.readPump()
}

// Push implements registry.Conn. It never blocks: a full buffer or a
// closing connection refuses the frame so the caller can queue it
// instead.
func (c *Client) Push(frame []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errSendFull
	}
}

// Close implements registry.Conn. Idempotent; safe from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.router.HandleDisconnect(context.Background(), c.session)
		c.metrics.Connections.Dec()
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity.Store(time.Now().UnixNano())
		if c.heartbeat != nil && c.session.Identified() {
			if err := c.heartbeat.Heartbeat(ctx, c.session.Identity(), c.session.DeviceID()); err != nil {
				c.logger.Warn("heartbeat refresh failed", c.session.Identity(), c.session.DeviceID())
			}
		}
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("unexpected close", c.session.Identity(), c.session.DeviceID(), err)
			}
			return
		}
		frame = bytes.TrimSpace(frame)
		if len(frame) == 0 {
			continue
		}
		c.lastActivity.Store(time.Now().UnixNano())
		c.router.HandleFrame(ctx, c.session, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// Session fields belong to the read loop; only the
			// immutable remote address is safe to log here.
			idle := time.Since(time.Unix(0, c.lastActivity.Load()))
			if idle > idleExpiry {
				c.logger.Info("client idle timeout", "", "",
					zap.String("remote_addr", c.session.RemoteAddr))
				return
			}
		}
	}
}
