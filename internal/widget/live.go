package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/realtime"
)

// SubmitConcern posts the concern, seeds the conversation optimistically,
// and enters live mode in the waiting state. On failure the widget stays in
// concern mode with a single error bubble appended, ready for an immediate
// resubmission; no automatic retry is performed.
func (w *Widget) SubmitConcern(ctx context.Context, concern string) error {
	concern = strings.TrimSpace(concern)
	if concern == "" {
		return errors.New("widget: concern text is empty")
	}

	w.mu.Lock()
	if w.mode != ModeConcern {
		mode := w.mode
		w.mu.Unlock()
		return fmt.Errorf("widget: cannot submit concern from %q", mode)
	}
	w.mu.Unlock()

	result, err := w.backend.RequestChat(ctx, concern)
	if err != nil || result.SessionID == "" {
		if err == nil {
			err = errors.New("widget: chat request returned no session id")
		}
		w.logf("[widget] chat request failed: %v", err)
		w.appendSystemError("We couldn't start your chat. Please try again.")
		return err
	}

	w.mu.Lock()
	w.sessionID = result.SessionID
	w.mode = ModeLive
	w.conn = ConnWaiting
	w.concernDraft = ""
	w.mu.Unlock()

	// Optimistic seed: the user's own text plus a waiting placeholder,
	// shown before any realtime echo arrives. The concern message carries
	// its server-assigned id, so the echo deduplicates against it.
	w.messages.Seed(
		result.Message,
		event.Message{
			ID:        idWaitingNotice,
			SessionID: result.SessionID,
			Sender:    event.SenderBot,
			Body:      "Please wait while we connect you to an admin.",
		},
	)

	w.attachSubscription(result.SessionID)
	return nil
}

// attachSubscription opens the realtime subscription pair for the session,
// tearing down any previous handle first so at most one pair is ever live.
// A failed subscribe is logged, not fatal: sending still works over the
// direct request path, the widget just won't see pushes until re-entry.
func (w *Widget) attachSubscription(sessionID string) {
	w.mu.Lock()
	prev := w.sub
	w.sub = nil
	w.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	sub, err := w.subscriber.Subscribe(sessionID, realtime.Handlers{
		OnMessage: w.handleMessage,
		OnStatus:  w.handleStatus,
		OnTyping:  w.handleTyping,
	})
	if err != nil {
		w.logf("[widget] realtime subscribe failed for session=%s: %v", sessionID, err)
		return
	}

	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()
}

// Send posts a message in the active conversation and appends it
// optimistically; the realtime echo deduplicates by id. A failed send
// surfaces as a single error bubble.
func (w *Widget) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return errors.New("widget: message body is empty")
	}

	w.mu.Lock()
	if w.mode != ModeLive {
		mode := w.mode
		w.mu.Unlock()
		return fmt.Errorf("widget: cannot send from %q", mode)
	}
	if w.conn == ConnClosed {
		w.mu.Unlock()
		return errors.New("widget: session is closed")
	}
	sessionID := w.sessionID
	w.mu.Unlock()

	msg, err := w.backend.SendMessage(ctx, sessionID, body)
	if err != nil {
		w.logf("[widget] send failed session=%s: %v", sessionID, err)
		w.appendSystemError("Your message could not be sent. Please try again.")
		return err
	}

	w.messages.Append(msg)
	return nil
}

// ClickAction sends a quick-reply button's value as an ordinary user
// message through the same path as typed text.
func (w *Widget) ClickAction(ctx context.Context, action event.Action) error {
	return w.Send(ctx, action.Value)
}

// InputChanged broadcasts a typing signal for the active session. It fires
// on every input change; the broadcast channel absorbs the volume, and
// failures are silently dropped since the signal carries no durable state.
func (w *Widget) InputChanged() {
	w.mu.Lock()
	live := w.mode == ModeLive && w.conn != ConnClosed
	sessionID := w.sessionID
	w.mu.Unlock()
	if !live || sessionID == "" {
		return
	}

	_ = w.typing.PublishTyping(event.Typing{
		Sender:    event.SenderUser,
		SessionID: sessionID,
	})
}

// EndChat explicitly closes the conversation. The close request's outcome
// never blocks the local transition: a failure is logged and the session
// still ends on this side.
func (w *Widget) EndChat(ctx context.Context) error {
	w.mu.Lock()
	if w.mode != ModeLive {
		mode := w.mode
		w.mu.Unlock()
		return fmt.Errorf("widget: cannot end chat from %q", mode)
	}
	sessionID := w.sessionID
	alreadyClosed := w.conn == ConnClosed
	w.mu.Unlock()

	if !alreadyClosed {
		if err := w.backend.CloseChat(ctx, sessionID); err != nil {
			w.logf("[widget] close request failed session=%s: %v", sessionID, err)
		}
		w.markClosed()
	}
	return nil
}

// Dismiss is called when the user closes the widget entirely. A live,
// not-yet-closed session is closed implicitly; the fixed delay afterwards
// lets the realtime fan-out deliver the closed-status update to any other
// open views before this one discards its subscription handles. Local state
// is always reset, whatever the close request's outcome.
func (w *Widget) Dismiss(ctx context.Context) {
	w.mu.Lock()
	sessionID := w.sessionID
	needsClose := w.mode == ModeLive && w.conn != ConnClosed && sessionID != ""
	w.mu.Unlock()

	if needsClose {
		if err := w.backend.CloseChat(ctx, sessionID); err != nil {
			w.logf("[widget] close on dismiss failed session=%s: %v", sessionID, err)
		}
		time.Sleep(w.dismissDelay)
	}

	w.reset()
}

// Back navigates to the menu from any mode, abandoning the current session:
// subscriptions are torn down, the log, draft and FAQ selection cleared.
func (w *Widget) Back() {
	w.reset()
}

// Shutdown releases the widget's resources without touching the server.
// Called when the hosting view unmounts.
func (w *Widget) Shutdown() {
	w.reset()
}

// handleMessage merges a pushed message into the log. Entries for stale
// sessions are dropped; duplicate delivery and optimistic echoes fall out
// in the log's dedup.
func (w *Widget) handleMessage(ev event.Message) {
	w.mu.Lock()
	current := w.sessionID
	w.mu.Unlock()
	if ev.SessionID != current {
		return
	}

	w.messages.Append(ev)
}

// handleStatus maps a pushed session-status update onto the connection
// state machine. This is the only path by which the widget learns that an
// admin joined or closed the conversation.
func (w *Widget) handleStatus(ev event.Status) {
	w.mu.Lock()
	if ev.SessionID != w.sessionID {
		w.mu.Unlock()
		return
	}

	switch ev.Status {
	case "active":
		if w.conn != ConnWaiting {
			w.mu.Unlock()
			return // re-delivery, or already closed
		}
		w.conn = ConnConnected
		sessionID := w.sessionID
		w.mu.Unlock()

		w.messages.Remove(idWaitingNotice)
		w.messages.Append(event.Message{
			ID:        idJoinedNotice,
			SessionID: sessionID,
			Sender:    event.SenderBot,
			Body:      "An admin has joined the chat.",
		})

	case "closed":
		w.mu.Unlock()
		w.markClosed()

	default:
		w.mu.Unlock()
	}
}

// markClosed transitions the connection state to closed exactly once and
// appends the end-of-chat notice. Closed is terminal: re-applying is a
// no-op.
func (w *Widget) markClosed() {
	w.mu.Lock()
	if w.conn == ConnClosed {
		w.mu.Unlock()
		return
	}
	w.conn = ConnClosed
	sessionID := w.sessionID
	w.mu.Unlock()

	w.messages.Append(event.Message{
		ID:        idClosedNotice,
		SessionID: sessionID,
		Sender:    event.SenderBot,
		Body:      "The chat has ended.",
	})
}

// reset tears down the session and returns the widget to the menu. It runs
// on every exit path; the subscription handle's idempotent Close makes
// double-teardown harmless.
func (w *Widget) reset() {
	w.mu.Lock()
	sub := w.sub
	w.sub = nil
	w.mode = ModeMenu
	w.conn = ConnNone
	w.sessionID = ""
	w.concernDraft = ""
	w.faqs = nil
	w.faqCategory = ""
	w.adminTyping = false
	if w.typingTimer != nil {
		w.typingTimer.Stop()
		w.typingTimer = nil
	}
	w.mu.Unlock()

	w.messages.Clear()
	if sub != nil {
		sub.Close()
	}
}
