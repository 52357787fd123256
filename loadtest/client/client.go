// Package client provides a reusable WebSocket load test client for the
// support-chat gateway. It connects using gobwas/ws (the same library the
// gateway uses), authenticates with a JWT passed as a query parameter, and
// tracks per-connection performance metrics. A session is created by sending
// request_chat; the client records the session ID from the resulting
// session_created message.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Protocol message types (local equivalents of internal/protocol constants)
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRequestChat = "request_chat"
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeEndChat     = "end_chat"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated = "session_created"
	TypeChatMessage    = "chat_message"
	TypeSessionStatus  = "session_status"
	TypePeerTyping     = "peer_typing"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	FirstMsgLatency  time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client represents a single simulated user connection to the support-chat
// gateway. It manages the WebSocket lifecycle and dispatches incoming
// messages to registered handlers.
type Client struct {
	conn      net.Conn
	mu        sync.Mutex
	sessionID string
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	pong      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dialedAt  time.Time
	firstMsg  bool
}

// DialURL builds the gateway WebSocket URL with the bearer token attached as
// the token query parameter, the form the gateway expects at upgrade time.
func DialURL(base, token string) string {
	return fmt.Sprintf("%s?token=%s", base, url.QueryEscape(token))
}

// New creates a new load test client connected to the given WebSocket URL.
// The connection is established immediately and a background goroutine begins
// reading messages. The URL must already carry the auth token; use DialURL.
func New(ctx context.Context, wsURL string) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		pong:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		dialedAt: start,
	}
	c.metrics.ConnectLatency = time.Since(start)

	// Start reading messages in background.
	go c.readLoop()

	return c, nil
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// RequestChat submits a concern, asking the server to open a new session.
// The session ID arrives asynchronously; use WaitForSession to block on it.
func (c *Client) RequestChat(concern string) error {
	return c.Send(map[string]string{
		"type":    TypeRequestChat,
		"concern": concern,
	})
}

// Ping sends an application-level ping and waits for the pong, confirming the
// full upgrade -> auth -> dispatch path works on this connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.Send(map[string]string{"type": TypePing}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("connection closed before pong")
	case <-c.pong:
		return nil
	}
}

// On registers a handler for a specific server message type. The handler
// receives the full raw JSON of the message for flexible decoding.
// Handlers are invoked from the read loop goroutine so they should not block
// for extended periods. Only one handler per message type is supported;
// registering a second handler for the same type replaces the first.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.handlers[msgType] = handler
}

// WaitForSession blocks until the server has created a session for this
// client or the context is cancelled. Call it after RequestChat.
func (c *Client) WaitForSession(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection closed before session was created")
		case <-ticker.C:
			if c.SessionID() != "" {
				return nil
			}
		}
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// SessionID returns the session ID assigned by the server, or an empty string
// if no session_created message has arrived yet.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop continuously reads WebSocket frames from the server and dispatches
// them to registered handlers. It runs until the connection is closed or an
// unrecoverable error occurs.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		if !c.firstMsg {
			c.firstMsg = true
			c.metrics.FirstMsgLatency = time.Since(c.dialedAt)
		}
		c.metrics.MessagesReceived++
		c.mu.Unlock()

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case TypeSessionCreated:
			var msg struct {
				SessionID string `json:"session_id"`
			}
			if err := json.Unmarshal(data, &msg); err == nil && msg.SessionID != "" {
				c.mu.Lock()
				c.sessionID = msg.SessionID
				c.mu.Unlock()
			}
		case TypePong:
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}

		// Dispatch to registered handler if one exists.
		if handler, ok := c.handlers[envelope.Type]; ok {
			handler(json.RawMessage(data))
		}
	}
}
