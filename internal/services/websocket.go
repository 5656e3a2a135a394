package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"support360/internal/metrics"
	"support360/internal/models"
	"support360/internal/store"
	"support360/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsReadLimit  = 512
)

var errHubStopped = errors.New("websocket hub stopped")

// WebSocketMessage is the frame pushed to clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	TicketID  uint        `json:"ticket_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`

	ownerID uint
}

// WebSocketClient is one authenticated connection.
type WebSocketClient struct {
	ID     string
	UserID uint
	Role   models.Role
	Conn   *websocket.Conn
	Send   chan WebSocketMessage
	Hub    *WebSocketHub
}

// WebSocketHub fans store change events out to connected clients.
// Customers only receive events about their own tickets.
type WebSocketHub struct {
	clients    map[string]*WebSocketClient
	broadcast  chan WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *logrus.Logger
}

func NewWebSocketHub(logger *logrus.Logger) *WebSocketHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &WebSocketHub{
		clients:    make(map[string]*WebSocketClient),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the token check in front of the route authenticates the peer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			metrics.SetWSClients(0)
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWSClients(n)
			h.logger.WithFields(logrus.Fields{"client_id": client.ID, "user_id": client.UserID}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.WithField("client_id", client.ID).Info("WebSocket client disconnected")
			}
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWSClients(n)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				if !client.allowed(message) {
					continue
				}
				select {
				case client.Send <- message:
				default:
					// slow consumer
					close(client.Send)
					delete(h.clients, id)
				}
			}
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWSClients(n)
		}
	}
}

// Publish converts a store event into a frame. It never blocks the caller;
// frames are dropped when the hub is saturated.
func (h *WebSocketHub) Publish(ev store.Event) {
	msg := WebSocketMessage{
		Type:      string(ev.Type),
		TicketID:  ev.TicketID,
		Data:      ev.Payload,
		Timestamp: ev.At,
		ownerID:   ev.OwnerID,
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("type", msg.Type).Warn("WebSocket broadcast queue full, dropping event")
	}
}

// ServeClient upgrades the request and attaches it to the hub as user.
func (h *WebSocketHub) ServeClient(w http.ResponseWriter, r *http.Request, user *models.User) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &WebSocketClient{
		ID:     utils.GenerateClientID(),
		UserID: user.ID,
		Role:   user.Role,
		Conn:   conn,
		Send:   make(chan WebSocketMessage, 64),
		Hub:    h,
	}
	client.Send <- WebSocketMessage{Type: "connected", Data: map[string]interface{}{"client_id": client.ID}, Timestamp: time.Now()}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return errHubStopped
	}

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *WebSocketHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (c *WebSocketClient) allowed(m WebSocketMessage) bool {
	if c.Role.IsStaff() {
		return true
	}
	return m.TicketID != 0 && m.ownerID == c.UserID
}

func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(wsReadLimit)
	c.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		var in struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			c.Hub.logger.WithField("client_id", c.ID).Debug("Ignoring malformed websocket frame")
			continue
		}
		if in.Type == "ping" {
			c.trySend(WebSocketMessage{Type: "pong", Timestamp: time.Now()})
		}
	}
}

// trySend queues m unless the client buffer is full or already closed.
func (c *WebSocketClient) trySend(m WebSocketMessage) {
	c.Hub.mutex.RLock()
	defer c.Hub.mutex.RUnlock()
	if _, ok := c.Hub.clients[c.ID]; !ok {
		return
	}
	select {
	case c.Send <- m:
	default:
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.logger.WithError(err).Debug("WebSocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
