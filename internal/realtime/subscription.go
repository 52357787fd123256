package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/pesocareers/support-chat/internal/event"
)

// Handlers receive decoded events for one session. Nil handlers are
// allowed; the corresponding events are dropped.
type Handlers struct {
	OnMessage func(event.Message)
	OnStatus  func(event.Status)
	OnTyping  func(event.Typing)
}

// Subscription is the scoped handle owning one session's realtime
// subscriptions: the message/status pair plus the independent typing
// channel. All are acquired together in Subscribe and released together in
// Close, which is idempotent so cleanup can run unconditionally on every
// exit path.
type Subscription struct {
	sessionID string
	client    *Client
	subs      []*nats.Subscription
	closeOnce sync.Once
}

// SessionID returns the session this handle is bound to.
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// Close unsubscribes everything the handle owns. Safe to call more than
// once; only the first call does work.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		for _, sub := range s.subs {
			if err := sub.Unsubscribe(); err != nil {
				log.Printf("[nats] unsubscribe %s: %v", sub.Subject, err)
			}
		}
		s.client.forget(s)
	})
}

// Subscribe opens the session's realtime subscriptions and returns the
// owning handle. At most one handle per session id is live on a client: any
// previous handle for the same id is closed first, so a widget restarting a
// concern can never leak its stale subscriptions.
func (c *Client) Subscribe(sessionID string, h Handlers) (*Subscription, error) {
	c.mu.Lock()
	prev := c.subs[sessionID]
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	handle, err := c.open(sessionID, h)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.subs[sessionID] = handle
	c.mu.Unlock()

	return handle, nil
}

// OpenSubscription opens an independent handle for the session, bypassing
// the one-per-session registry. Handles for the same session do not evict
// each other, so the gateway can keep several sockets (a seeker with two
// open views, or a staff console alongside the seeker) attached to one
// session at once. The caller owns the handle and must close it on detach.
func (c *Client) OpenSubscription(sessionID string, h Handlers) (*Subscription, error) {
	return c.open(sessionID, h)
}

// open wires the session's three subjects into a fresh handle.
func (c *Client) open(sessionID string, h Handlers) (*Subscription, error) {
	handle := &Subscription{sessionID: sessionID, client: c}

	msgSub, err := c.conn.Subscribe(fmt.Sprintf(SubjectMessages, sessionID), func(m *nats.Msg) {
		var ev event.Message
		if err := decode(m, &ev); err != nil {
			return
		}
		ev.Normalize()
		if h.OnMessage != nil {
			h.OnMessage(ev)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe messages for %s: %w", sessionID, err)
	}
	handle.subs = append(handle.subs, msgSub)

	statusSub, err := c.conn.Subscribe(fmt.Sprintf(SubjectStatus, sessionID), func(m *nats.Msg) {
		var ev event.Status
		if err := decode(m, &ev); err != nil {
			return
		}
		if h.OnStatus != nil {
			h.OnStatus(ev)
		}
	})
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("nats: subscribe status for %s: %w", sessionID, err)
	}
	handle.subs = append(handle.subs, statusSub)

	typingSub, err := c.conn.Subscribe(fmt.Sprintf(SubjectTyping, sessionID), func(m *nats.Msg) {
		var ev event.Typing
		if err := decode(m, &ev); err != nil {
			return
		}
		if h.OnTyping != nil {
			h.OnTyping(ev)
		}
	})
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("nats: subscribe typing for %s: %w", sessionID, err)
	}
	handle.subs = append(handle.subs, typingSub)

	return handle, nil
}

// SubscribeFeed opens a cross-session feed over the message and status
// subjects of every session. It bypasses the per-session registry; the
// gateway uses it to keep its replay window fed with traffic that entered
// through other processes. Nil handlers skip their subjects, and typing
// broadcasts are not part of the feed.
func (c *Client) SubscribeFeed(h Handlers) (*Subscription, error) {
	handle := &Subscription{client: c}

	if h.OnMessage != nil {
		msgSub, err := c.conn.Subscribe(SubjectMessagesAll, func(m *nats.Msg) {
			var ev event.Message
			if err := decode(m, &ev); err != nil {
				return
			}
			ev.Normalize()
			h.OnMessage(ev)
		})
		if err != nil {
			return nil, fmt.Errorf("nats: subscribe message feed: %w", err)
		}
		handle.subs = append(handle.subs, msgSub)
	}

	if h.OnStatus != nil {
		statusSub, err := c.conn.Subscribe(SubjectStatusAll, func(m *nats.Msg) {
			var ev event.Status
			if err := decode(m, &ev); err != nil {
				return
			}
			h.OnStatus(ev)
		})
		if err != nil {
			handle.Close()
			return nil, fmt.Errorf("nats: subscribe status feed: %w", err)
		}
		handle.subs = append(handle.subs, statusSub)
	}

	return handle, nil
}

// forget drops the handle from the client's registry if it is still the
// registered one. A newer handle for the same session is left in place.
func (c *Client) forget(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[s.sessionID] == s {
		delete(c.subs, s.sessionID)
	}
}

func decode(m *nats.Msg, v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		log.Printf("[nats] drop malformed payload on %s: %v", m.Subject, err)
		return err
	}
	return nil
}
