// Package widget implements the client core of the support-chat widget:
// the mode and connection state machine, the deduplicated message log, the
// typing indicator, and the cleanup that guarantees realtime subscriptions
// are released on every exit path. All collaborators (the HTTP backend,
// the realtime subscriber, the typing broadcaster, and the identity
// provider) are injected, so the core runs against fakes in tests and
// against the real services in cmd/widget.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/faq"
	"github.com/pesocareers/support-chat/internal/realtime"
)

// Mode is the widget's top-level UI state.
type Mode string

const (
	ModeMenu    Mode = "menu"
	ModeFAQ     Mode = "faq"
	ModeConcern Mode = "concern"
	ModeLive    Mode = "live"
)

// ConnStatus is the nested connection state while in live mode. Closed is
// terminal for a session instance; a new concern allocates a new session
// and starts over at waiting.
type ConnStatus string

const (
	ConnNone      ConnStatus = ""
	ConnWaiting   ConnStatus = "waiting"
	ConnConnected ConnStatus = "connected"
	ConnClosed    ConnStatus = "closed"
)

// Synthetic entry ids. The joined notice reuses a fixed id so a re-delivered
// status update cannot duplicate it.
const (
	idWaitingNotice = "system:waiting"
	idJoinedNotice  = "system:joined"
	idClosedNotice  = "system:closed"
)

// RequestResult is what the backend returns for a newly created session:
// the session id plus the persisted concern message, whose id lets the
// optimistic local append deduplicate against the realtime echo.
type RequestResult struct {
	SessionID string
	Message   event.Message
}

// Backend is the request/response boundary to the support API.
type Backend interface {
	RequestChat(ctx context.Context, concern string) (RequestResult, error)
	SendMessage(ctx context.Context, sessionID, body string) (event.Message, error)
	CloseChat(ctx context.Context, sessionID string) error
	FetchFAQs(ctx context.Context) ([]faq.FAQ, error)
}

// Subscription is the scoped handle owning a session's realtime
// subscriptions. Close must be idempotent.
type Subscription interface {
	Close()
}

// Subscriber opens the realtime subscription pair for a session.
type Subscriber interface {
	Subscribe(sessionID string, h realtime.Handlers) (Subscription, error)
}

// TypingBroadcaster sends ephemeral typing signals. *realtime.Client
// satisfies this directly.
type TypingBroadcaster interface {
	PublishTyping(ev event.Typing) error
}

// IdentityProvider reports the authenticated requester, if any. Without one
// the live-chat option is not offered at all.
type IdentityProvider interface {
	Current() (auth.Identity, bool)
}

// Config wires the widget's collaborators and tunables.
type Config struct {
	Backend    Backend
	Subscriber Subscriber
	Typing     TypingBroadcaster
	Identity   IdentityProvider

	// TypingExpiry is how long the "admin is typing" flag stays set after
	// the most recent signal. Defaults to 3 seconds.
	TypingExpiry time.Duration

	// DismissDelay is the pause between the implicit close request on
	// widget dismissal and the local state reset, giving the realtime
	// fan-out a chance to deliver the closed-status update to other open
	// views first. Defaults to 1 second.
	DismissDelay time.Duration

	// Logf receives diagnostic output. Defaults to log.Printf.
	Logf func(format string, args ...interface{})
}

// Widget is the support-chat client core. All methods are safe for
// concurrent use; realtime callbacks and UI calls interleave freely.
type Widget struct {
	mu sync.Mutex

	backend    Backend
	subscriber Subscriber
	typing     TypingBroadcaster
	identity   IdentityProvider

	typingExpiry time.Duration
	dismissDelay time.Duration
	logf         func(format string, args ...interface{})

	mode         Mode
	conn         ConnStatus
	sessionID    string
	messages     *Log
	concernDraft string
	faqs         []faq.FAQ
	faqCategory  string

	adminTyping bool
	typingTimer *time.Timer
	typingGen   uint64

	sub    Subscription
	errSeq int // counter for unique system-error entry ids
}

// New creates a widget in menu mode. Backend, Subscriber, Typing and
// Identity are required.
func New(cfg Config) (*Widget, error) {
	if cfg.Backend == nil || cfg.Subscriber == nil || cfg.Typing == nil || cfg.Identity == nil {
		return nil, errors.New("widget: backend, subscriber, typing and identity are all required")
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = 3 * time.Second
	}
	if cfg.DismissDelay <= 0 {
		cfg.DismissDelay = 1 * time.Second
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	return &Widget{
		backend:      cfg.Backend,
		subscriber:   cfg.Subscriber,
		typing:       cfg.Typing,
		identity:     cfg.Identity,
		typingExpiry: cfg.TypingExpiry,
		dismissDelay: cfg.DismissDelay,
		logf:         cfg.Logf,
		mode:         ModeMenu,
		messages:     NewLog(),
	}, nil
}

// Mode returns the widget's current top-level state.
func (w *Widget) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// ConnStatus returns the live-mode connection state.
func (w *Widget) ConnStatus() ConnStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

// SessionID returns the active session id, empty outside live mode.
func (w *Widget) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Messages returns the displayed conversation in arrival order.
func (w *Widget) Messages() []event.Message {
	return w.messages.Entries()
}

// AdminTyping reports whether the "admin is typing" indicator is shown.
func (w *Widget) AdminTyping() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.adminTyping
}

// CanRequestChat reports whether the live-chat option is offered. It is an
// authorization gate: without an authenticated requester the option simply
// does not appear.
func (w *Widget) CanRequestChat() bool {
	_, ok := w.identity.Current()
	return ok
}

// FAQs returns the entries fetched (or substituted) for FAQ mode.
func (w *Widget) FAQs() []faq.FAQ {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]faq.FAQ, len(w.faqs))
	copy(out, w.faqs)
	return out
}

// FAQCategory returns the currently selected FAQ category label.
func (w *Widget) FAQCategory() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.faqCategory
}

// SelectFAQCategory records the chosen category label.
func (w *Widget) SelectFAQCategory(category string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.faqCategory = category
}

// ConcernDraft returns the concern text typed so far.
func (w *Widget) ConcernDraft() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.concernDraft
}

// SetConcernDraft stores the concern text typed so far.
func (w *Widget) SetConcernDraft(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.concernDraft = text
}

// OpenFAQ moves from the menu to FAQ mode and fetches the reference data
// once for the mode's lifetime. A failed fetch substitutes the fixed
// fallback set so the list is never empty.
func (w *Widget) OpenFAQ(ctx context.Context) error {
	w.mu.Lock()
	if w.mode != ModeMenu {
		mode := w.mode
		w.mu.Unlock()
		return fmt.Errorf("widget: cannot open FAQ from %q", mode)
	}
	w.mode = ModeFAQ
	w.mu.Unlock()

	faqs, err := w.backend.FetchFAQs(ctx)
	if err != nil || len(faqs) == 0 {
		if err != nil {
			w.logf("[widget] faq fetch failed, using fallback: %v", err)
		}
		faqs = faq.Fallback()
	}

	w.mu.Lock()
	w.faqs = faqs
	w.mu.Unlock()
	return nil
}

// StartConcern moves from the menu to concern intake. It requires an
// authenticated requester.
func (w *Widget) StartConcern() error {
	if !w.CanRequestChat() {
		return errors.New("widget: live chat requires an authenticated requester")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mode != ModeMenu {
		return fmt.Errorf("widget: cannot start concern from %q", w.mode)
	}
	w.mode = ModeConcern
	return nil
}

// appendSystemError adds a single synthetic error bubble to the log. Each
// failure gets a fresh id so repeated failures all surface.
func (w *Widget) appendSystemError(text string) {
	w.mu.Lock()
	w.errSeq++
	id := fmt.Sprintf("system:error:%d", w.errSeq)
	w.mu.Unlock()

	w.messages.Append(event.Message{
		ID:     id,
		Sender: event.SenderBot,
		Body:   text,
	})
}
