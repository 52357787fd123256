// Package realtime bridges persisted chat events onto NATS subjects for
// push delivery to widget clients. Each session owns three subjects
// (inserted messages, status updates, and ephemeral typing broadcasts),
// acquired and released together through a scoped Subscription handle.
// Subscribe keeps a one-handle-per-session registry for widget clients;
// OpenSubscription hands out independent handles so a gateway can attach
// many sockets to the same session.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesocareers/support-chat/internal/event"
)

// Subject patterns, completed with the session id.
const (
	SubjectMessages = "chat.session.%s.messages"
	SubjectStatus   = "chat.session.%s.status"
	SubjectTyping   = "chat.session.%s.typing"
)

// Wildcard subjects spanning every session, for process-wide feeds.
const (
	SubjectMessagesAll = "chat.session.*.messages"
	SubjectStatusAll   = "chat.session.*.status"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "support-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Client wraps the NATS connection with publish helpers and per-session
// subscription management.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*Subscription // sessionID -> active handle
}

// Connect dials NATS with the given config and returns a ready client.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*Subscription),
	}, nil
}

// PublishMessage publishes an inserted chat message to its session subject.
func (c *Client) PublishMessage(ev event.Message) error {
	return c.publish(fmt.Sprintf(SubjectMessages, ev.SessionID), ev)
}

// PublishStatus publishes a session status change to its session subject.
func (c *Client) PublishStatus(ev event.Status) error {
	return c.publish(fmt.Sprintf(SubjectStatus, ev.SessionID), ev)
}

// PublishTyping broadcasts an ephemeral typing signal. Best effort: typing
// signals carry no durable state and failures are not surfaced to users.
func (c *Client) PublishTyping(ev event.Typing) error {
	return c.publish(fmt.Sprintf(SubjectTyping, ev.SessionID), ev)
}

func (c *Client) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("nats: marshal for %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	return nil
}

// Close releases every outstanding subscription handle and drains the
// connection.
func (c *Client) Close() {
	c.mu.Lock()
	handles := make([]*Subscription, 0, len(c.subs))
	for _, h := range c.subs {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] client closed")
}
