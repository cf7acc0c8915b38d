// Package realtime distributes execution lifecycle events to subscribers.
// The engine publishes; in-process handlers, the WebSocket broadcaster, and
// the optional Kafka mirror consume.
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of a lifecycle event
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"

	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"

	EventStateChanged EventType = "state.changed"
)

// Event is one lifecycle event of one execution.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"executionId"`
	WorkflowID  string                 `json:"workflowId,omitempty"`
	NodeID      string                 `json:"nodeId,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(eventType EventType, executionID, workflowID string, data map[string]interface{}) Event {
	return Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// Channels returns the subscription channels this event fans out on, so
// subscribers can filter by granularity.
func (e Event) Channels() []string {
	channels := make([]string, 0, 3)
	if e.ExecutionID != "" {
		channels = append(channels, "execution:"+e.ExecutionID)
	}
	if e.WorkflowID != "" {
		channels = append(channels, "workflow:"+e.WorkflowID)
	}
	if e.NodeID != "" {
		channels = append(channels, "node:"+e.NodeID)
	}
	return channels
}

// Handler consumes published events.
type Handler func(Event)

// Broadcaster delivers an event message to every subscriber of a channel.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastToChannel(channel string, message interface{})
}

// Bus is the in-process publish/subscribe fan-out. Publishing is
// synchronous: within one execution the engine is the only publisher, which
// preserves event order for every subscriber.
type Bus struct {
	mu          sync.RWMutex
	handlers    []Handler
	typed       map[EventType][]Handler
	broadcaster Broadcaster
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{typed: make(map[EventType][]Handler)}
}

// Subscribe registers a handler for every event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// SubscribeType registers a handler for one event type.
func (b *Bus) SubscribeType(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.typed[t] = append(b.typed[t], h)
}

// AttachBroadcaster wires a channel broadcaster; each event is delivered on
// all its applicable channels.
func (b *Bus) AttachBroadcaster(bc Broadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcaster = bc
}

// Publish delivers the event to all handlers and broadcasts it.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers)+len(b.typed[e.Type]))
	handlers = append(handlers, b.handlers...)
	handlers = append(handlers, b.typed[e.Type]...)
	bc := b.broadcaster
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}

	if bc != nil {
		msg := map[string]interface{}{
			"type":      string(e.Type),
			"payload":   e,
			"timestamp": e.Timestamp.UnixMilli(),
		}
		for _, channel := range e.Channels() {
			bc.BroadcastToChannel(channel, msg)
		}
	}
}
