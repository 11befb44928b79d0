package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// Action WebSocket: hub + per-client pumps
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - Broadcast of button_press events to every registered client
//
// Delivery rules:
//   - Registering an already registered client is a no-op.
//   - A newly registered client is sent {"type":"connected"} first.
//   - Register returns only after the hub has added the client, so any
//     Broadcast issued after it returns reaches that client.
//   - A client whose send queue is full is skipped for that message, never
//     removed. Removal only happens on an explicit disconnect (read pump
//     error) or hub shutdown.
//   - No retry, no buffering beyond the send queue: a stale press is worthless.
//
// ============================================================================

type Hub struct {
	logger  *slog.Logger
	metrics *Metrics

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan registration
	unregister chan *Client
	done       chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}

	// Configuration
	sendBuf int
	now     func() time.Time
}

// registration carries a client to the hub loop; added is closed once the
// client is in the set.
type registration struct {
	c     *Client
	added chan struct{}
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	// If zero, a conservative default is used.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	// If zero, a conservative default is used.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, metrics *Metrics, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = defaultSendBuf
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = defaultBroadcastBuf
	}

	return &Hub{
		logger:     logger,
		metrics:    metrics,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan registration, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
		now:        time.Now,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case reg := <-h.register:
			h.addClient(reg.c)
			close(reg.added)

		case c := <-h.unregister:
			h.removeClient(c, "disconnect")

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.mu.Unlock()
		h.logger.Debug("ws client already registered", "client", c.id, "remote_addr", c.remoteAddr)
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetClients(n)
	h.logger.Info("client connected to IR remote server", "client", c.id, "remote_addr", c.remoteAddr, "clients", n)

	// Let the client tell "no server" apart from "server present but idle".
	msg, err := encodeConnected()
	if err != nil {
		h.logger.Warn("ws connected marshal failed", "error", err)
		return
	}
	if !c.offer(msg) {
		h.metrics.IncDeliverySkipped()
	}
}

// fanOut offers msg to every client without blocking. A client that vanished
// mid-iteration simply has a full or closed queue; it is skipped.
func (h *Hub) fanOut(msg []byte) {
	delivered, skipped := 0, 0

	h.mu.Lock()
	for c := range h.clients {
		if c.offer(msg) {
			delivered++
		} else {
			skipped++
		}
	}
	h.mu.Unlock()

	for i := 0; i < skipped; i++ {
		h.metrics.IncDeliverySkipped()
	}
	if skipped > 0 {
		h.logger.Debug("ws broadcast skipped non-writable clients", "delivered", delivered, "skipped", skipped)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
	h.metrics.SetClients(0)
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		c.closeSend()

		h.metrics.SetClients(n)
		h.logger.Info("client disconnected from IR remote server", "client", c.id, "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// Register adds c to the hub and waits until the hub loop has done so.
// It returns false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	reg := registration{c: c, added: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.done:
		return false
	}
	select {
	case <-reg.added:
		return true
	case <-h.done:
		// The loop may have added c right before stopping.
		select {
		case <-reg.added:
			return true
		default:
			return false
		}
	}
}

// Unregister queues c for removal (explicit disconnect notification).
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast serializes a button_press event and enqueues it for every client.
// It never blocks; if the hub queue is full the press is dropped.
func (h *Hub) Broadcast(a SemanticAction) {
	msg, err := encodeButtonPress(a, h.now())
	if err != nil {
		h.logger.Warn("ws broadcast marshal failed", "error", err, "action", a)
		return
	}
	h.metrics.IncBroadcasts()
	h.BroadcastBytes(msg)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	sendMu sync.Mutex
	closed bool

	id         string
	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := defaultSendBuf
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		id:         uuid.NewString(),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// offer enqueues msg if the client is writable. A closed or full queue
// reports false.
func (c *Client) offer(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

const (
	writeWait = 5 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logPumpExit("writePump", "write error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logPumpExit("writePump", "ping error", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and handle control frames.
// It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logPumpExit("readPump", "read error", err)
			if c.hub != nil {
				c.hub.Unregister(c)
			}
			return
		}
	}
}

func (c *Client) logPumpExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("ws "+pump+" exiting (close)", "client", c.id, "code", code, "reason", text)
		return
	}
	c.logger.Debug("ws "+pump+" exiting ("+what+")", "client", c.id, "error", err)
}
