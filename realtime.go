package linkup

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the realtime channel client.
type RealtimeConfig struct {
	// UserID identifies this client to the server; the server uses it to
	// route send-message events and to publish presence.
	UserID string

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	Logger               zerolog.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

// eventDispatcher routes decoded envelopes to registered handlers.
// Handlers run synchronously, one event at a time, in subscription order;
// every handler runs to completion before the next event is dispatched.
// The cache-consistency logic in ingest.go relies on this contract.
type eventDispatcher struct {
	mu                 sync.RWMutex
	onOnlineUsers      []func([]string)
	onUserConnected    []func(string)
	onUserDisconnected []func(string)
	onReceiveMessage   []func(SocketMessage)
	onConnected        []func()
	onDisconnected     []func(string)
	onReconnecting     []func(int, time.Duration)
}

func (d *eventDispatcher) dispatch(env Envelope) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch env.Event {
	case EventOnlineUsers:
		var ids []string
		if json.Unmarshal(env.Data, &ids) == nil {
			for _, h := range d.onOnlineUsers {
				h(ids)
			}
		}
	case EventUserConnected:
		var id string
		if json.Unmarshal(env.Data, &id) == nil {
			for _, h := range d.onUserConnected {
				h(id)
			}
		}
	case EventUserDisconnected:
		var id string
		if json.Unmarshal(env.Data, &id) == nil {
			for _, h := range d.onUserDisconnected {
				h(id)
			}
		}
	case EventReceiveMessage:
		var msg SocketMessage
		if json.Unmarshal(env.Data, &msg) == nil {
			for _, h := range d.onReceiveMessage {
				h(msg)
			}
		}
	}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *eventDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(reason)
	}
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(attempt, delay)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient is the out-of-band event channel: a WebSocket connection
// carrying presence events and messages pushed by other participants,
// with optional auto-reconnect. It implements RealtimeChannel (consumed
// by Session.Attach) and MessagePublisher (consumed by Session.Send).
type RealtimeClient struct {
	baseURL    string
	config     *RealtimeConfig
	log        zerolog.Logger
	dispatcher *eventDispatcher
	recon      *reconnector

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	cancelFn         context.CancelFunc
	// rootCtx is the context the caller passed to Connect; reconnect
	// attempts derive their connection contexts from it so cancelled
	// predecessors never chain into the replacement connection.
	rootCtx context.Context
}

// NewRealtimeClient creates a realtime channel client against the given
// API base URL (http/https; the scheme is rewritten to ws/wss).
func NewRealtimeClient(baseURL string, config *RealtimeConfig) *RealtimeClient {
	if config == nil {
		config = &RealtimeConfig{}
	}
	config.defaults()
	return &RealtimeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		config:     config,
		log:        config.Logger,
		dispatcher: &eventDispatcher{},
		recon:      newReconnector(config),
		state:      StateDisconnected,
	}
}

// OnOnlineUsers registers a handler for the full online-user set.
func (rc *RealtimeClient) OnOnlineUsers(h func(userIDs []string)) {
	rc.dispatcher.mu.Lock()
	rc.dispatcher.onOnlineUsers = append(rc.dispatcher.onOnlineUsers, h)
	rc.dispatcher.mu.Unlock()
}

// OnUserConnected registers a handler for single-user connects.
func (rc *RealtimeClient) OnUserConnected(h func(userID string)) {
	rc.dispatcher.mu.Lock()
	rc.dispatcher.onUserConnected = append(rc.dispatcher.onUserConnected, h)
	rc.dispatcher.mu.Unlock()
}

// OnUserDisconnected registers a handler for single-user disconnects.
func (rc *RealtimeClient) OnUserDisconnected(h func(userID string)) {
	rc.dispatcher.mu.Lock()
	rc.dispatcher.onUserDisconnected = append(rc.dispatcher.onUserDisconnected, h)
	rc.dispatcher.mu.Unlock()
}

// OnReceiveMessage registers a handler for messages pushed by other
// participants.
func (rc *RealtimeClient) OnReceiveMessage(h func(msg SocketMessage)) {
	rc.dispatcher.mu.Lock()
	rc.dispatcher.onReceiveMessage = append(rc.dispatcher.onReceiveMessage, h)
	rc.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (rc *RealtimeClient) OnConnected(h func()) {
	rc.dispatcher.mu.Lock()
	rc.dispatcher.onConnected = append(rc.dispatcher.onConnected, h)
	rc.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (rc *RealtimeClient) OnDisconnected(h func(reason string)) {
	rc.dispatcher.mu.Lock()
	rc.dispatcher.onDisconnected = append(rc.dispatcher.onDisconnected, h)
	rc.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (rc *RealtimeClient) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rc.dispatcher.mu.Lock()
	rc.dispatcher.onReconnecting = append(rc.dispatcher.onReconnecting, h)
	rc.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (rc *RealtimeClient) State() RealtimeState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// Connect establishes the WebSocket connection and starts the read loop.
func (rc *RealtimeClient) Connect(ctx context.Context) error {
	rc.mu.Lock()
	if rc.state == StateConnected || rc.state == StateConnecting {
		rc.mu.Unlock()
		return nil
	}
	rc.state = StateConnecting
	rc.intentionalClose = false
	rc.rootCtx = ctx
	rc.mu.Unlock()

	wsURL := strings.Replace(rc.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?id=" + url.QueryEscape(rc.config.UserID)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		rc.mu.Lock()
		rc.state = StateDisconnected
		rc.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	rc.mu.Lock()
	if rc.cancelFn != nil {
		rc.cancelFn()
	}
	rc.conn = conn
	rc.state = StateConnected
	rc.cancelFn = cancel
	rc.mu.Unlock()
	rc.recon.markConnected()

	rc.dispatcher.emitConnected()

	go rc.readLoop(connCtx, conn)
	return nil
}

// Disconnect gracefully closes the connection. No reconnect is attempted.
func (rc *RealtimeClient) Disconnect() error {
	rc.mu.Lock()
	rc.intentionalClose = true
	if rc.cancelFn != nil {
		rc.cancelFn()
		rc.cancelFn = nil
	}
	conn := rc.conn
	rc.conn = nil
	rc.state = StateDisconnected
	rc.mu.Unlock()

	var closeErr error
	if conn != nil {
		closeErr = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	rc.dispatcher.emitDisconnected("client disconnect")
	return closeErr
}

// PublishMessage emits a send-message event addressed to the recipient.
func (rc *RealtimeClient) PublishMessage(ctx context.Context, msg SocketMessage) error {
	return rc.send(ctx, EventSendMessage, msg)
}

func (rc *RealtimeClient) send(ctx context.Context, event string, data interface{}) error {
	rc.mu.Lock()
	conn := rc.conn
	rc.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (rc *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rc.mu.Lock()
			intentional := rc.intentionalClose
			rc.mu.Unlock()
			if intentional {
				return
			}

			rc.mu.Lock()
			rc.state = StateDisconnected
			rc.conn = nil
			root := rc.rootCtx
			rc.mu.Unlock()

			rc.dispatcher.emitDisconnected(err.Error())

			if rc.config.AutoReconnect && rc.recon.shouldReconnect() {
				rc.scheduleReconnect(root)
			}
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		rc.dispatcher.dispatch(env)
	}
}

func (rc *RealtimeClient) scheduleReconnect(ctx context.Context) {
	delay := rc.recon.nextDelay()
	rc.mu.Lock()
	rc.state = StateReconnecting
	rc.mu.Unlock()

	rc.log.Info().Int("attempt", rc.recon.attempt).Dur("delay", delay).
		Msg("realtime channel reconnecting")
	rc.dispatcher.emitReconnecting(rc.recon.attempt, delay)

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if err := rc.Connect(ctx); err != nil {
		if rc.config.AutoReconnect && rc.recon.shouldReconnect() {
			rc.scheduleReconnect(ctx)
		} else {
			rc.log.Warn().Err(err).Msg("realtime channel reconnect gave up")
			rc.mu.Lock()
			rc.state = StateDisconnected
			rc.mu.Unlock()
		}
	}
}
