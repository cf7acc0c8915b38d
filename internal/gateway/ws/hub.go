// Package ws implements the WebSocket broadcaster: client connections,
// per-client channel subscriptions, and event delivery.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Narcis13/workscript/internal/platform/logger"
)

// Message is the wire format of the WebSocket subprotocol. Incoming
// subscribe/unsubscribe messages may carry the channel at the root or inside
// the payload; outgoing messages always use the payload form.
type Message struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp,omitempty"`
}

// StatsFunc supplies system stats embedded in system:pong replies.
type StatsFunc func() map[string]interface{}

// HubConfig customizes the hub.
type HubConfig struct {
	ServerID string
	// SendTimeout bounds a blocked client write before the client is
	// evicted.
	SendTimeout time.Duration
	Stats       StatsFunc
}

// Hub maintains the set of active clients and their channel subscriptions.
type Hub struct {
	log         logger.Logger
	serverID    string
	sendTimeout time.Duration
	stats       StatsFunc

	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]map[string]*Client
}

// NewHub creates a hub.
func NewHub(log logger.Logger, cfg HubConfig) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Hub{
		log:         log,
		serverID:    cfg.ServerID,
		sendTimeout: cfg.SendTimeout,
		stats:       cfg.Stats,
		clients:     make(map[string]*Client),
		channels:    make(map[string]map[string]*Client),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.log.Debug("websocket client connected", "clientId", c.ID)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		for channel := range c.channels {
			if subs, ok := h.channels[channel]; ok {
				delete(subs, c.ID)
				if len(subs) == 0 {
					delete(h.channels, channel)
				}
			}
		}
		c.close()
	}
	h.mu.Unlock()
	h.log.Debug("websocket client disconnected", "clientId", c.ID)
}

// Subscribe adds a client to a channel.
func (h *Hub) Subscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[string]*Client)
	}
	h.channels[channel][c.ID] = c
	c.channels[channel] = true
}

// Unsubscribe removes a client from a channel.
func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(c.channels, channel)
}

// BroadcastToChannel delivers a message to every subscriber of the channel.
// Implements realtime.Broadcaster.
func (h *Hub) BroadcastToChannel(channel string, message interface{}) {
	h.BroadcastToChannelExcept(channel, message, "")
}

// BroadcastToChannelExcept delivers to every subscriber except one client.
func (h *Hub) BroadcastToChannelExcept(channel string, message interface{}, excludeClientID string) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Warn("failed to serialize broadcast", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	subs := h.channels[channel]
	targets := make([]*Client, 0, len(subs))
	for id, c := range subs {
		if id != excludeClientID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// Broadcast delivers a message to every connected client.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Warn("failed to serialize broadcast", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// deliver hands data to the client's write pump; a client whose buffer stays
// full past the send timeout is evicted.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	case <-time.After(h.sendTimeout):
		h.log.Warn("evicting slow websocket client", "clientId", c.ID)
		go h.unregister(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of subscribers of a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// handleMessage dispatches one decoded client message.
func (h *Hub) handleMessage(c *Client, msg *Message) {
	switch msg.Type {
	case "ping":
		c.sendMessage(&Message{Type: "pong", Timestamp: time.Now().UnixMilli()})

	case "system:ping":
		payload := map[string]interface{}{
			"timestamp": time.Now().UnixMilli(),
			"serverId":  h.serverID,
		}
		if h.stats != nil {
			payload["stats"] = h.stats()
		}
		c.sendMessage(&Message{Type: "system:pong", Payload: payload, Timestamp: time.Now().UnixMilli()})

	case "subscribe":
		if channel := msg.channelName(); channel != "" {
			h.Subscribe(c, channel)
			c.sendMessage(&Message{
				Type:      "subscribed",
				Payload:   map[string]interface{}{"channel": channel},
				Timestamp: time.Now().UnixMilli(),
			})
		}

	case "unsubscribe":
		if channel := msg.channelName(); channel != "" {
			h.Unsubscribe(c, channel)
			c.sendMessage(&Message{
				Type:      "unsubscribed",
				Payload:   map[string]interface{}{"channel": channel},
				Timestamp: time.Now().UnixMilli(),
			})
		}

	default:
		c.sendMessage(&Message{
			Type:      "error",
			Payload:   map[string]interface{}{"error": "Unknown message type: " + msg.Type},
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// channelName accepts both message styles: channel at the root or inside
// the payload.
func (m *Message) channelName() string {
	if m.Channel != "" {
		return m.Channel
	}
	if m.Payload != nil {
		if channel, ok := m.Payload["channel"].(string); ok {
			return channel
		}
	}
	return ""
}

func newClientID() string {
	return "client-" + uuid.New().String()
}
