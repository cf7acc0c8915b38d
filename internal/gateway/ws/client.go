package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected WebSocket peer.
type Client struct {
	ID string

	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool
	closed   chan struct{}
}

// Handler upgrades HTTP requests into hub clients.
type Handler struct {
	hub *Hub
}

// NewHandler creates the WebSocket upgrade handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP upgrades the connection, registers the client, and sends the
// welcome message carrying the assigned client id.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:       newClientID(),
		hub:      h.hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: make(map[string]bool),
		closed:   make(chan struct{}),
	}

	h.hub.register(client)

	go client.writePump()
	go client.readPump()

	client.sendMessage(&Message{
		Type:      "connection.welcome",
		Payload:   map[string]interface{}{"clientId": client.ID},
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", "clientId", c.ID, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendMessage(&Message{
				Type:      "error",
				Payload:   map[string]interface{}{"error": "invalid message"},
				Timestamp: time.Now().UnixMilli(),
			})
			continue
		}

		c.hub.handleMessage(c, &msg)
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
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.closed:
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.closed:
	default:
	}
}

func (c *Client) close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}
