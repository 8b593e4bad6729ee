package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/convosync/internal/metrics"
	"github.com/eldtechnologies/convosync/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// WSChannel is the websocket implementation of PushChannel. It owns the
// dial/read/reconnect lifecycle: once connected, it decodes inbound frames
// and hands them to the event handler in delivery order; on failure it
// reconnects per its ReconnectPolicy until Disconnect is called.
type WSChannel struct {
	log    zerolog.Logger
	policy ReconnectPolicy
	dialer *websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	cancel       context.CancelFunc
	done         chan struct{}
	state        State
	eventHandler EventHandler
	stateHandler StateHandler
}

// NewWSChannel creates a disconnected channel with the given backoff policy.
func NewWSChannel(log zerolog.Logger, policy ReconnectPolicy) *WSChannel {
	if policy.Initial <= 0 {
		policy = DefaultReconnectPolicy()
	}
	return &WSChannel{
		log:    log.With().Str("component", "ws-channel").Logger(),
		policy: policy,
		dialer: websocket.DefaultDialer,
	}
}

// OnEvent registers the inbound event handler. Must be set before Connect.
func (c *WSChannel) OnEvent(h EventHandler) {
	c.mu.Lock()
	c.eventHandler = h
	c.mu.Unlock()
}

// OnStateChange registers the connection state observer.
func (c *WSChannel) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.stateHandler = h
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *WSChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection manager. endpoint is the websocket URL
// derived from the current user; credential is a bearer token. Connect
// returns once the manager is running, not once the socket is up.
func (c *WSChannel) Connect(endpoint, credential string) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return fmt.Errorf("push channel already connected")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, done, endpoint, credential)
	return nil
}

// Disconnect tears the channel down synchronously: when it returns, the
// socket is closed and no further events will be delivered.
func (c *WSChannel) Disconnect() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	<-done
	return nil
}

// Transmit sends the event on the live connection. There is no queueing and
// no retry here; a failed transmission is the caller's to surface.
func (c *WSChannel) Transmit(ev models.ChatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.state != StateConnected {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	if err := c.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	return nil
}

func (c *WSChannel) run(ctx context.Context, done chan struct{}, endpoint, credential string) {
	defer close(done)
	defer c.setState(StateDisconnected)

	var delay time.Duration
	for {
		c.setState(StateConnecting)

		sessionID := uuid.NewString()
		conn, err := c.dial(ctx, endpoint, credential)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = c.policy.Next(delay, 0)
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("dial failed")
			metrics.Reconnects.Inc()
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		c.log.Info().Str("session_id", sessionID).Msg("connected")

		start := time.Now()
		pingStop := make(chan struct{})
		go c.pingLoop(pingStop)

		readErr := c.readLoop(conn)
		close(pingStop)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		c.setState(StateDisconnected)
		delay = c.policy.Next(delay, time.Since(start))
		c.log.Warn().Err(readErr).Str("session_id", sessionID).
			Dur("retry_in", delay).Msg("connection lost")
		metrics.Reconnects.Inc()
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (c *WSChannel) dial(ctx context.Context, endpoint, credential string) (*websocket.Conn, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// readLoop decodes inbound frames until the connection fails. Frames that
// are not valid JSON are skipped; shape validation happens in the handler.
func (c *WSChannel) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev models.ChatEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Debug().Err(err).Msg("skipping undecodable frame")
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			continue
		}

		c.mu.Lock()
		handler := c.eventHandler
		c.mu.Unlock()
		if handler != nil {
			handler(ev)
		}
	}
}

func (c *WSChannel) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			if conn != nil {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.mu.Unlock()
		}
	}
}

func (c *WSChannel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	handler := c.stateHandler
	c.mu.Unlock()

	if handler != nil {
		handler(s)
	}
}

// sleep waits for the delay or context cancellation, reporting whether the
// caller should continue.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
