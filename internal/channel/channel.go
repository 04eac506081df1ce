// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/checkin/internal/type"
	"github.com/rapidaai/checkin/pkg/commons"
)

// State is the channel connectivity state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
)

// HeartbeatToken is the literal text frame sent periodically while open.
const HeartbeatToken = "heartbeat"

// Dispatcher receives inbound progress events; satisfied by the recordings
// store.
type Dispatcher interface {
	ApplyProgressEvent(event *internal_type.ProgressEvent)
}

// ProgressChannel is the persistent websocket delivering asynchronous
// server-side processing updates. Lifecycle:
//
//	Disconnected -> Connecting on Connect
//	Connecting   -> Open on handshake; heartbeat starts
//	Open         -> Disconnected on unclean close; reconnect after a fixed
//	                delay while a user id is set and Close was not called
//	Open         -> Disconnected on Close (clean); no reconnect
//
// Errors are reported through the error callback without changing
// connectivity state themselves; an eventual close event drives the state.
type ProgressChannel struct {
	logger     commons.Logger
	dispatcher Dispatcher
	url        string
	userID     uint64

	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	dialer            *websocket.Dialer
	onState           func(State)
	onError           func(error)

	mu             sync.Mutex
	writeMu        sync.Mutex
	state          State
	conn           *websocket.Conn
	stopHeartbeat  chan struct{}
	reconnectTimer *time.Timer
	closed         bool
	attempts       int
}

// Option configures a ProgressChannel.
type Option func(*ProgressChannel)

// WithHeartbeatInterval overrides the heartbeat period (default 30s).
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *ProgressChannel) { c.heartbeatInterval = d }
}

// WithReconnectDelay overrides the fixed reconnect backoff (default 3s).
func WithReconnectDelay(d time.Duration) Option {
	return func(c *ProgressChannel) { c.reconnectDelay = d }
}

// WithStateCallback registers a connectivity state observer.
func WithStateCallback(fn func(State)) Option {
	return func(c *ProgressChannel) { c.onState = fn }
}

// WithErrorCallback registers an error observer. Errors are informational;
// recovery happens through the reconnect loop.
func WithErrorCallback(fn func(error)) Option {
	return func(c *ProgressChannel) { c.onError = fn }
}

// NewProgressChannel builds a channel for the given endpoint. userID zero
// means no user is set; Connect refuses and reconnects stop.
func NewProgressChannel(logger commons.Logger, url string, userID uint64, dispatcher Dispatcher, opts ...Option) *ProgressChannel {
	c := &ProgressChannel{
		logger:            logger,
		dispatcher:        dispatcher,
		url:               url,
		userID:            userID,
		heartbeatInterval: 30 * time.Second,
		reconnectDelay:    3 * time.Second,
		dialer:            &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		state:             StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect performs the handshake and starts the read and heartbeat loops.
// Already connecting or open is a no-op. A failed handshake schedules a
// reconnect attempt and returns ErrChannelConnectFailed.
func (c *ProgressChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.userID == 0 {
		c.mu.Unlock()
		return internal_type.ErrChannelNoUser
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.setStateLocked(StateConnecting)
	c.attempts++
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.reportError(fmt.Errorf("%w: %v", internal_type.ErrChannelConnectFailed, err))
		return fmt.Errorf("%w: %v", internal_type.ErrChannelConnectFailed, err)
	}
	conn.SetReadLimit(1 << 20)

	c.mu.Lock()
	if c.closed {
		// Close ran while the dial was in flight; teardown wins. The fresh
		// connection is discarded and no loops start.
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.stopHeartbeat = make(chan struct{})
	c.setStateLocked(StateOpen)
	stop := c.stopHeartbeat
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.heartbeatLoop(conn, stop)

	c.logger.Infof("channel: connected to %s", c.url)
	return nil
}

// Close tears the channel down cleanly: reconnect and heartbeat timers are
// cancelled and a normal close frame is sent. No reconnect follows.
func (c *ProgressChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
		c.stopHeartbeat = nil
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	err := conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Debugf("channel: close frame: %v", err)
	}
	return conn.Close()
}

// State returns the current connectivity state.
func (c *ProgressChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether real-time updates are flowing. The upload
// pipeline uses this to decide between channel-driven and simulated progress.
func (c *ProgressChannel) Connected() bool {
	return c.State() == StateOpen
}

// Attempts returns the number of connection attempts made so far.
func (c *ProgressChannel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// readLoop decodes inbound frames and routes them to the dispatcher until
// the connection drops.
func (c *ProgressChannel) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		var event internal_type.ProgressEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.logger.Errorf("channel: undecodable frame dropped: %v", err)
			continue
		}
		if event.Type == internal_type.EventHeartbeat {
			continue
		}
		c.dispatcher.ApplyProgressEvent(&event)
	}
}

// heartbeatLoop sends the literal heartbeat token every interval while the
// connection is open. The ticker is released on every exit path.
func (c *ProgressChannel) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(HeartbeatToken))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugf("channel: heartbeat write failed: %v", err)
				return
			}
		}
	}
}

// handleDisconnect transitions to Disconnected and schedules a reconnect
// unless the closure was clean (explicit teardown or a normal close frame).
func (c *ProgressChannel) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop from a connection already replaced or torn down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
		c.stopHeartbeat = nil
	}
	c.setStateLocked(StateDisconnected)

	clean := c.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	if !clean {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	conn.Close()
	if clean {
		c.logger.Infof("channel: closed")
		return
	}
	c.reportError(fmt.Errorf("%w: %v", internal_type.ErrChannelClosedUnclean, err))
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer. Callers must
// hold the lock. No timer is armed once Close ran or without a user id.
func (c *ProgressChannel) scheduleReconnectLocked() {
	if c.closed || c.userID == 0 {
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		if err := c.Connect(context.Background()); err != nil {
			c.logger.Warnf("channel: reconnect failed: %v", err)
		}
	})
	c.logger.Infof("channel: reconnecting in %s", c.reconnectDelay)
}

func (c *ProgressChannel) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.onState != nil {
		go c.onState(state)
	}
}

func (c *ProgressChannel) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}
