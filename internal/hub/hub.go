package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/peercast/internal/config"
	"github.com/weiawesome/peercast/internal/domain"
	pkglog "github.com/weiawesome/peercast/pkg/log"
)

var (
	ErrClientNotFound = errors.New("client not connected")
	ErrSendBufferFull = errors.New("client send buffer full")
	ErrHubStopped     = errors.New("hub stopped")
)

// DisconnectHandler is called once when a client disconnects.
type DisconnectHandler func(*Client)

// Client represents a connected WebSocket client.
type Client struct {
	ID         string
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte
	Connection *domain.Connection

	disconnectHandler DisconnectHandler
	disconnectOnce    sync.Once
}

// NewClient wires a websocket connection into the hub.
func NewClient(h *Hub, id string, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		ID:         id,
		Hub:        h,
		Conn:       conn,
		Send:       make(chan []byte, h.config.SendBuffer),
		Connection: domain.NewConnection(id, remoteAddr),
	}
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// disconnect runs the disconnect handler at most once.
func (c *Client) disconnect() {
	c.disconnectOnce.Do(func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
	})
}

// Hub owns the set of live connections and delivers frames to them.
// Session membership lives in the directory, not here.
type Hub struct {
	clients    map[string]*Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, after
// closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	l := pkglog.L().With().Str(pkglog.FieldComponent, "hub").Logger()

	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.ID]; ok && current == client {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldConnectionID, client.ID).Int("clients", n).
				Time("last_active", client.Connection.LastActive()).Msg("client unregistered")

		case <-ctx.Done():
			h.mu.Lock()
			close(h.done)
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			l.Info().Msg("hub stopped")
			return
		}
	}
}

// Register adds a client to the hub. The client is addressable as soon as
// Register returns.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return ErrHubStopped
	default:
	}
	h.clients[client.ID] = client
	n := len(h.clients)
	h.mu.Unlock()

	l := pkglog.L()
	l.Info().Str(pkglog.FieldComponent, "hub").Str(pkglog.FieldConnectionID, client.ID).Int("clients", n).Msg("client registered")
	return nil
}

// Unregister removes a client from the hub. Unknown clients are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendToClient queues a message for one client without blocking. A client
// whose buffer is full is considered stuck and gets disconnected.
func (h *Hub) SendToClient(clientID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return h.SendFrame(clientID, data)
}

// SendToClients queues one message for several clients, encoding it once.
// It returns how many clients accepted the frame.
func (h *Hub) SendToClients(clientIDs []string, message interface{}) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, id := range clientIDs {
		if h.SendFrame(id, data) == nil {
			delivered++
		}
	}
	return delivered, nil
}

// SendFrame queues an already encoded frame as is.
func (h *Hub) SendFrame(clientID string, data []byte) error {
	// The read lock is held across the send so Run cannot close the
	// channel underneath it.
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		go h.Unregister(client)
		return ErrSendBufferFull
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReadPump pumps messages from the WebSocket connection to the handler.
// Frames from one client are handled one at a time, in order.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.disconnect()
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Warn().Err(err).Str(pkglog.FieldConnectionID, c.ID).Msg("websocket read error")
			}
			break
		}

		c.Connection.UpdateActivity()
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))

		handler(c, message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
