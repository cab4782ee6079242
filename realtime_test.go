package linkup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func writeEnvelope(ctx context.Context, t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func TestRealtimeClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gotID := make(chan string, 1)
	fromClient := make(chan Envelope, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws", r.URL.Path)
		gotID <- r.URL.Query().Get("id")

		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		writeEnvelope(ctx, t, conn, EventOnlineUsers, []string{"u2", "u3"})
		writeEnvelope(ctx, t, conn, EventUserConnected, "u4")
		writeEnvelope(ctx, t, conn, EventReceiveMessage, SocketMessage{
			RecipientID:    "u1",
			ConversationID: "c1",
			Message:        msgAt("m1", "c1", 10),
		})

		// Wait for the client's send-message publish.
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		fromClient <- env

		// Hold the connection open until the client disconnects.
		conn.Read(ctx)
	}))
	defer server.Close()

	rc := NewRealtimeClient(server.URL, &RealtimeConfig{UserID: "u1"})

	var order []string
	online := make(chan []string, 1)
	connected := make(chan string, 1)
	received := make(chan SocketMessage, 1)

	rc.OnOnlineUsers(func(ids []string) {
		order = append(order, EventOnlineUsers)
		online <- ids
	})
	rc.OnUserConnected(func(id string) {
		order = append(order, EventUserConnected)
		connected <- id
	})
	rc.OnReceiveMessage(func(msg SocketMessage) {
		order = append(order, EventReceiveMessage)
		received <- msg
	})

	require.NoError(t, rc.Connect(ctx))
	assert.Equal(t, StateConnected, rc.State())
	assert.Equal(t, "u1", <-gotID)

	assert.Equal(t, []string{"u2", "u3"}, <-online)
	assert.Equal(t, "u4", <-connected)

	msg := <-received
	assert.Equal(t, "m1", msg.Message.ID)
	assert.Equal(t, "c1", msg.ConversationID)

	// Events were dispatched one at a time, in arrival order. The order
	// slice is only written from the single read loop, and all three
	// events have been consumed above.
	assert.Equal(t, []string{EventOnlineUsers, EventUserConnected, EventReceiveMessage}, order)

	require.NoError(t, rc.PublishMessage(ctx, SocketMessage{
		RecipientID:    "u2",
		ConversationID: "c1",
		Message:        msgAt("m2", "c1", 20),
	}))
	env := <-fromClient
	assert.Equal(t, EventSendMessage, env.Event)
	var out SocketMessage
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "u2", out.RecipientID)
	assert.Equal(t, "m2", out.Message.ID)

	require.NoError(t, rc.Disconnect())
	assert.Equal(t, StateDisconnected, rc.State())
}

func TestRealtimeClientDisconnectNotifiesHandlers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")
		conn.Read(ctx)
	}))
	defer server.Close()

	rc := NewRealtimeClient(server.URL, &RealtimeConfig{UserID: "u1"})

	disconnected := make(chan string, 1)
	rc.OnDisconnected(func(reason string) { disconnected <- reason })

	require.NoError(t, rc.Connect(ctx))
	require.NoError(t, rc.Disconnect())

	select {
	case reason := <-disconnected:
		assert.Equal(t, "client disconnect", reason)
	case <-ctx.Done():
		t.Fatal("timed out waiting for the disconnected event")
	}
}

func TestRealtimeClientPublishRequiresConnection(t *testing.T) {
	rc := NewRealtimeClient("http://localhost:8000", &RealtimeConfig{UserID: "u1"})
	err := rc.PublishMessage(context.Background(), SocketMessage{})
	require.Error(t, err)
}

func TestRealtimeClientAutoReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		if connections.Add(1) == 1 {
			// Drop the first connection to trigger a reconnect.
			conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		writeEnvelope(ctx, t, conn, EventUserConnected, "u9")
		conn.Read(ctx)
	}))
	defer server.Close()

	rc := NewRealtimeClient(server.URL, &RealtimeConfig{
		UserID:             "u1",
		AutoReconnect:      true,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
	})

	reconnecting := make(chan struct{}, 1)
	connectedTwice := make(chan struct{}, 2)
	rc.OnReconnecting(func(attempt int, delay time.Duration) {
		select {
		case reconnecting <- struct{}{}:
		default:
		}
	})
	rc.OnConnected(func() { connectedTwice <- struct{}{} })
	presence := make(chan string, 1)
	rc.OnUserConnected(func(id string) { presence <- id })

	require.NoError(t, rc.Connect(ctx))
	<-connectedTwice

	select {
	case <-reconnecting:
	case <-ctx.Done():
		t.Fatal("timed out waiting for reconnect attempt")
	}

	select {
	case <-connectedTwice:
	case <-ctx.Done():
		t.Fatal("timed out waiting for second connection")
	}

	// The replacement connection's read loop must be live: its context
	// descends from the dial context, not from the dropped connection's.
	select {
	case id := <-presence:
		assert.Equal(t, "u9", id)
	case <-ctx.Done():
		t.Fatal("timed out waiting for an event on the reconnected channel")
	}
	require.NoError(t, rc.Disconnect())
}

func TestReconnectorBackoff(t *testing.T) {
	r := newReconnector(&RealtimeConfig{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    10 * time.Second,
		MaxReconnectAttempts: 3,
	})

	d1 := r.nextDelay()
	d2 := r.nextDelay()
	d3 := r.nextDelay()

	assert.GreaterOrEqual(t, d1, time.Second)
	assert.GreaterOrEqual(t, d2, 2*time.Second)
	assert.GreaterOrEqual(t, d3, 4*time.Second)
	assert.LessOrEqual(t, d3, 10*time.Second)
	assert.False(t, r.shouldReconnect())
}
