// Package feedback relays operator feedback events over a websocket
// channel. Feedback is best-effort telemetry, not a durable record: if the
// channel is not open the event is dropped with a warning.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/careops/carepipe/internal/models"
)

// Channel is the outbound feedback transport. A *websocket.Conn wrapped in
// a WebSocketChannel satisfies it; tests substitute a fake.
type Channel interface {
	IsOpen() bool
	WriteJSON(v interface{}) error
}

// SessionResolver returns the authoritative session identity at call time.
// The lifecycle controller satisfies it, so feedback always follows the
// live session even when the session was created after the relay.
type SessionResolver interface {
	SessionID() string
}

// Relay forwards typed feedback events to the channel.
type Relay struct {
	mu       sync.Mutex
	channel  Channel
	resolver SessionResolver
	now      func() time.Time
}

// NewRelay creates a feedback relay. The channel may be attached later via
// SetChannel once the connection is established.
func NewRelay(resolver SessionResolver) *Relay {
	slog.Debug("Relay.NewRelay: creating feedback relay", "hasResolver", resolver != nil)
	return &Relay{resolver: resolver, now: time.Now}
}

// SetChannel attaches (or replaces) the outbound channel.
func (r *Relay) SetChannel(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel = ch
}

// Send emits one feedback event. It never fails the caller: a missing
// session or a closed channel drops the event with a local warning.
func (r *Relay) Send(panel, feedbackType, freeText, userID string) {
	sessionID := ""
	if r.resolver != nil {
		sessionID = r.resolver.SessionID()
	}

	r.mu.Lock()
	ch := r.channel
	now := r.now()
	r.mu.Unlock()

	if sessionID == "" || ch == nil || !ch.IsOpen() {
		slog.Warn("Relay.Send: no active session or open channel, feedback dropped",
			"panel", panel, "sessionID_set", sessionID != "")
		return
	}

	event := models.FeedbackEvent{
		Type:         "submit_feedback",
		SessionID:    sessionID,
		Panel:        panel,
		FeedbackType: feedbackType,
		FeedbackText: freeText,
		UserID:       userID,
		Timestamp:    now.UnixMilli(),
	}
	if err := ch.WriteJSON(event); err != nil {
		slog.Warn("Relay.Send: channel write failed, feedback dropped", "error", err, "panel", panel)
		return
	}
	slog.Debug("Relay.Send: feedback sent", "panel", panel, "feedbackType", feedbackType, "sessionID", sessionID)
}

// WebSocketChannel adapts a gorilla websocket connection to the Channel
// interface.
type WebSocketChannel struct {
	mu   sync.Mutex
	conn *websocket.Conn
	open bool
}

// Dial connects the feedback websocket.
func Dial(ctx context.Context, url string) (*WebSocketChannel, error) {
	slog.Debug("WebSocketChannel.Dial: connecting", "url_set", url != "")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial feedback channel: %w", err)
	}
	return &WebSocketChannel{conn: conn, open: true}, nil
}

// IsOpen reports whether the connection is usable.
func (c *WebSocketChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// WriteJSON writes one JSON message. A write failure closes the channel.
func (c *WebSocketChannel) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return fmt.Errorf("feedback channel closed")
	}
	if err := c.conn.WriteJSON(v); err != nil {
		c.open = false
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	return c.conn.Close()
}
