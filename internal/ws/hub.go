// Package ws provides the WebSocket transport for the JSON-RPC façade
// (internal/jsonrpc): a connection hub that broadcasts notifications to
// every client and, per client, reads inbound Requests and dispatches
// them to a handler supplied at construction time.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// RequestHandler processes one inbound Request and returns the
// Response to send back (synchronously, for non-async methods) or nil
// if the method is async and will reply later via Client.Send.
type RequestHandler func(ctx context.Context, c *Client, req Request) *Response

// Client represents a connected WebSocket client.
type Client struct {
	conn    *websocket.Conn
	connID  string
	locale  string
	send    chan any
	logger  *zap.Logger
	handler RequestHandler
}

// NewClient wraps an accepted WebSocket connection. Call Run to pump
// reads and writes until the connection closes or ctx is done.
func NewClient(conn *websocket.Conn, connID string, logger *zap.Logger, handler RequestHandler) *Client {
	return &Client{
		conn:    conn,
		connID:  connID,
		send:    make(chan any, 64),
		logger:  logger,
		handler: handler,
	}
}

// Send enqueues a Response or Notification for delivery to this client.
// Non-blocking: drops the message and logs a warning if the client's
// send buffer is full.
func (c *Client) Send(msg any) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("client send buffer full, dropping message", zap.String("conn_id", c.connID))
	}
}

// Hub manages active WebSocket connections and broadcasts notifications.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("conn_id", c.connID))
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", zap.String("conn_id", c.connID))
}

// Broadcast pushes a notification to every connected client.
func (h *Hub) Broadcast(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		c.Send(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run pumps reads and writes for c until ctx is done or the connection
// errors. Blocks; call from its own goroutine per accepted connection.
func (c *Client) Run(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

// writePump sends messages from the client's send channel to the WebSocket.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				// Channel closed by hub (unregister).
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}
}

// readPump reads inbound Requests and dispatches them via the client's
// handler, writing any synchronous Response straight back.
func (c *Client) readPump(ctx context.Context) {
	for {
		var req Request
		if err := wsjson.Read(ctx, c.conn, &req); err != nil {
			return
		}
		if c.handler == nil {
			continue
		}
		if resp := c.handler(ctx, c, req); resp != nil {
			c.Send(resp)
		}
	}
}
