package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Narcis13/workscript/internal/gateway/realtime"
	"github.com/Narcis13/workscript/internal/platform/logger"
)

type wsTestClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dialTestClient(t *testing.T, server *httptest.Server) *wsTestClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsTestClient{t: t, conn: conn}

	welcome := c.read()
	require.Equal(t, "connection.welcome", welcome.Type)
	clientID, ok := welcome.Payload["clientId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, clientID)
	c.id = clientID
	return c
}

func (c *wsTestClient) send(msg Message) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func (c *wsTestClient) read() Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

func (c *wsTestClient) expectNone() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var msg Message
	err := c.conn.ReadJSON(&msg)
	assert.Error(c.t, err, "expected no message, got %+v", msg)
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(logger.NewNop(), HubConfig{
		ServerID: "test-server",
		Stats: func() map[string]interface{} {
			return map[string]interface{}{"cpuPercent": 1.5}
		},
	})
	mux := httptest.NewServer(NewHandler(hub))
	t.Cleanup(mux.Close)
	return hub, mux
}

func waitForSubscribers(t *testing.T, hub *Hub, channel string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(channel) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("channel %s never reached %d subscribers", channel, want)
}

func TestPingPong(t *testing.T) {
	_, server := newTestHub(t)
	client := dialTestClient(t, server)

	client.send(Message{Type: "ping"})
	reply := client.read()
	assert.Equal(t, "pong", reply.Type)
	assert.NotZero(t, reply.Timestamp)
}

func TestSystemPing(t *testing.T) {
	_, server := newTestHub(t)
	client := dialTestClient(t, server)

	client.send(Message{Type: "system:ping"})
	reply := client.read()
	assert.Equal(t, "system:pong", reply.Type)
	assert.Equal(t, "test-server", reply.Payload["serverId"])
	assert.NotNil(t, reply.Payload["timestamp"])
	stats, ok := reply.Payload["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.5, stats["cpuPercent"])
}

func TestUnknownMessageType(t *testing.T) {
	_, server := newTestHub(t)
	client := dialTestClient(t, server)

	client.send(Message{Type: "bogus"})
	reply := client.read()
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "Unknown message type: bogus", reply.Payload["error"])
}

func TestSubscribeChannelAtRootOrPayload(t *testing.T) {
	hub, server := newTestHub(t)

	rootStyle := dialTestClient(t, server)
	rootStyle.send(Message{Type: "subscribe", Channel: "execution:E"})
	require.Equal(t, "subscribed", rootStyle.read().Type)

	payloadStyle := dialTestClient(t, server)
	payloadStyle.send(Message{Type: "subscribe", Payload: map[string]interface{}{"channel": "execution:E"}})
	require.Equal(t, "subscribed", payloadStyle.read().Type)

	waitForSubscribers(t, hub, "execution:E", 2)
}

func TestChannelFanOut(t *testing.T) {
	hub, server := newTestHub(t)

	clientA := dialTestClient(t, server)
	clientA.send(Message{Type: "subscribe", Channel: "execution:E"})
	require.Equal(t, "subscribed", clientA.read().Type)

	clientB := dialTestClient(t, server)
	clientB.send(Message{Type: "subscribe", Channel: "workflow:W"})
	require.Equal(t, "subscribed", clientB.read().Type)

	waitForSubscribers(t, hub, "execution:E", 1)
	waitForSubscribers(t, hub, "workflow:W", 1)

	// An execution event for workflow W / execution E reaches both, each on
	// their channel.
	bus := realtime.NewBus()
	bus.AttachBroadcaster(hub)
	bus.Publish(realtime.NewEvent(realtime.EventExecutionStarted, "E", "W", map[string]interface{}{"workflowId": "W"}))

	gotA := clientA.read()
	assert.Equal(t, "execution.started", gotA.Type)
	gotB := clientB.read()
	assert.Equal(t, "execution.started", gotB.Type)

	// After A unsubscribes, the next event reaches only B.
	clientA.send(Message{Type: "unsubscribe", Channel: "execution:E"})
	require.Equal(t, "unsubscribed", clientA.read().Type)
	waitForSubscribers(t, hub, "execution:E", 0)

	bus.Publish(realtime.NewEvent(realtime.EventNodeCompleted, "E", "W", map[string]interface{}{"edge": "success"}))

	gotB = clientB.read()
	assert.Equal(t, "node.completed", gotB.Type)
	clientA.expectNone()
}

func TestBroadcastToAll(t *testing.T) {
	hub, server := newTestHub(t)

	clientA := dialTestClient(t, server)
	clientB := dialTestClient(t, server)

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 2, hub.ClientCount())

	hub.Broadcast(Message{Type: "system:status", Payload: map[string]interface{}{"ok": true}})

	assert.Equal(t, "system:status", clientA.read().Type)
	assert.Equal(t, "system:status", clientB.read().Type)
}

func TestBroadcastExcludesClient(t *testing.T) {
	hub, server := newTestHub(t)

	clientA := dialTestClient(t, server)
	clientA.send(Message{Type: "subscribe", Channel: "node:n1"})
	require.Equal(t, "subscribed", clientA.read().Type)

	clientB := dialTestClient(t, server)
	clientB.send(Message{Type: "subscribe", Channel: "node:n1"})
	require.Equal(t, "subscribed", clientB.read().Type)

	waitForSubscribers(t, hub, "node:n1", 2)

	hub.BroadcastToChannelExcept("node:n1", Message{Type: "note"}, clientA.id)

	assert.Equal(t, "note", clientB.read().Type)
	clientA.expectNone()
}

func TestOutgoingMessagesUsePayloadForm(t *testing.T) {
	hub, server := newTestHub(t)

	client := dialTestClient(t, server)
	client.send(Message{Type: "subscribe", Channel: "execution:E"})
	require.Equal(t, "subscribed", client.read().Type)
	waitForSubscribers(t, hub, "execution:E", 1)

	bus := realtime.NewBus()
	bus.AttachBroadcaster(hub)
	bus.Publish(realtime.NewEvent(realtime.EventStateChanged, "E", "W", map[string]interface{}{"path": "x"}))

	// Read raw to check the envelope shape.
	client.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := client.conn.ReadMessage()
	require.NoError(t, err)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "state.changed", envelope["type"])
	assert.Contains(t, envelope, "payload")
	assert.NotContains(t, envelope, "channel")
}
