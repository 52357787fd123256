// Package support orchestrates the chat domain: it ties session state,
// message persistence, realtime fan-out and metrics together behind one
// service used by both the HTTP API and the WebSocket gateway.
package support

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/faq"
	"github.com/pesocareers/support-chat/internal/message"
	"github.com/pesocareers/support-chat/internal/metrics"
	"github.com/pesocareers/support-chat/internal/realtime"
	"github.com/pesocareers/support-chat/internal/session"
)

// Sentinel errors mapped to HTTP statuses by the API layer.
var (
	ErrSessionNotFound = errors.New("support: session not found")
	ErrSessionClosed   = errors.New("support: session is closed")
	ErrAlreadyJoined   = errors.New("support: session already has an admin")
	ErrNotParticipant  = errors.New("support: not a participant of this session")
)

// Service implements the support-chat operations.
type Service struct {
	sessions *session.Store
	messages *message.Store
	faqs     *faq.Store
	rt       *realtime.Client
	replay   *message.ReplayBuffer
}

// New assembles the service from its stores and the realtime client.
func New(sessions *session.Store, messages *message.Store, faqs *faq.Store, rt *realtime.Client) *Service {
	return &Service{
		sessions: sessions,
		messages: messages,
		faqs:     faqs,
		rt:       rt,
		replay:   message.NewReplayBuffer(),
	}
}

// RequestResult is what a successful chat request returns: the new session
// and the persisted concern message, whose server-assigned id lets the
// client merge the realtime echo.
type RequestResult struct {
	Session *session.Session
	Message event.Message
}

// RequestChat opens a new waiting session for the requester with the
// concern text as its first message.
func (s *Service) RequestChat(ctx context.Context, requester auth.Identity, concern string) (*RequestResult, error) {
	if err := message.ValidateBody(concern); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	if err := s.sessions.Create(ctx, sessionID, requester.UserID); err != nil {
		return nil, err
	}

	msg, err := s.persistAndPublish(ctx, sessionID, event.SenderUser, concern, nil)
	if err != nil {
		// Roll back the dangling session rather than leave an empty
		// conversation in the staff queue.
		if derr := s.sessions.Delete(ctx, sessionID); derr != nil {
			log.Printf("[support] orphan session cleanup failed session=%s: %v", sessionID, derr)
		}
		return nil, err
	}

	if err := s.rt.PublishStatus(event.Status{SessionID: sessionID, Status: session.StatusWaiting}); err != nil {
		log.Printf("[support] status publish failed session=%s: %v", sessionID, err)
	}

	metrics.SessionsTotal.WithLabelValues("requested").Inc()
	metrics.WaitingSessions.Inc()
	log.Printf("[support] session requested session=%s requester=%s", sessionID, requester.UserID)

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &RequestResult{Session: sess, Message: msg}, nil
}

// SendMessage validates, persists and fans out a chat message. The sender
// must be a participant of the session and the session must still be open.
func (s *Service) SendMessage(ctx context.Context, from auth.Identity, sessionID, body string) (event.Message, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return event.Message{}, err
	}
	if sess == nil {
		return event.Message{}, ErrSessionNotFound
	}
	if sess.IsClosed() {
		return event.Message{}, ErrSessionClosed
	}

	sender := event.SenderUser
	if from.IsStaff() {
		sender = event.SenderAdmin
	} else if sess.RequesterID != from.UserID {
		return event.Message{}, ErrNotParticipant
	}

	if err := message.ValidateBody(body); err != nil {
		return event.Message{}, err
	}

	msg, err := s.persistAndPublish(ctx, sessionID, sender, body, nil)
	if err != nil {
		return event.Message{}, err
	}

	if err := s.sessions.RefreshTTL(ctx, sessionID); err != nil {
		log.Printf("[support] ttl refresh failed session=%s: %v", sessionID, err)
	}
	return msg, nil
}

// SendBotMessage inserts a bot-authored message, optionally with quick-reply
// actions, into an open session. Used by server-side automation.
func (s *Service) SendBotMessage(ctx context.Context, sessionID, body string, actions []event.Action) (event.Message, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return event.Message{}, err
	}
	if sess == nil {
		return event.Message{}, ErrSessionNotFound
	}
	if sess.IsClosed() {
		return event.Message{}, ErrSessionClosed
	}
	return s.persistAndPublish(ctx, sessionID, event.SenderBot, body, actions)
}

// Join assigns an admin to a waiting session and announces the pickup.
// Only the waiting->active transition is legal; anything else is rejected.
func (s *Service) Join(ctx context.Context, admin auth.Identity, sessionID string) (*session.Session, error) {
	if !admin.IsStaff() {
		return nil, ErrNotParticipant
	}

	result, err := s.sessions.Join(ctx, sessionID, admin.UserID)
	if err != nil {
		return nil, err
	}
	switch result {
	case session.JoinOK:
	case session.JoinNotFound:
		return nil, ErrSessionNotFound
	default:
		return nil, ErrAlreadyJoined
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	// The transcript records the pickup; live widgets render their own
	// notice from the status update, so only the status is fanned out.
	if err := s.persistTranscriptNotice(ctx, sessionID, "An admin has joined the chat."); err != nil {
		log.Printf("[support] join notice insert failed session=%s: %v", sessionID, err)
	}
	if err := s.rt.PublishStatus(event.Status{SessionID: sessionID, Status: session.StatusActive}); err != nil {
		log.Printf("[support] status publish failed session=%s: %v", sessionID, err)
	}

	metrics.SessionsTotal.WithLabelValues("joined").Inc()
	metrics.WaitingSessions.Dec()
	metrics.PickupDuration.Observe(time.Since(time.Unix(sess.CreatedAt, 0)).Seconds())
	log.Printf("[support] admin joined session=%s admin=%s", sessionID, admin.UserID)
	return sess, nil
}

// Close terminates a session. Closing is idempotent: repeated calls and
// calls against an already-closed session succeed without effect.
func (s *Service) Close(ctx context.Context, from auth.Identity, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if !from.IsStaff() && sess.RequesterID != from.UserID {
		return ErrNotParticipant
	}

	wasWaiting := sess.Status == session.StatusWaiting

	closed, err := s.sessions.Close(ctx, sessionID)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}

	if err := s.persistTranscriptNotice(ctx, sessionID, "The chat has ended."); err != nil {
		log.Printf("[support] close notice insert failed session=%s: %v", sessionID, err)
	}
	if err := s.rt.PublishStatus(event.Status{SessionID: sessionID, Status: session.StatusClosed}); err != nil {
		log.Printf("[support] status publish failed session=%s: %v", sessionID, err)
	}
	s.replay.Drop(sessionID)

	metrics.SessionsTotal.WithLabelValues("closed").Inc()
	if wasWaiting {
		metrics.WaitingSessions.Dec()
	}
	log.Printf("[support] session closed session=%s by=%s", sessionID, from.UserID)
	return nil
}

// Session returns the current session state, or ErrSessionNotFound.
func (s *Service) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// History returns the persisted transcript for a session, oldest first.
// Access is limited to the requester and staff.
func (s *Service) History(ctx context.Context, from auth.Identity, sessionID string, limit int) ([]event.Message, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !from.IsStaff() && sess.RequesterID != from.UserID {
		return nil, ErrNotParticipant
	}

	rows, err := s.messages.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]event.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Event())
	}
	return out, nil
}

// Recent returns the in-memory replay window for a session, used to seed a
// freshly attached realtime subscriber without a database round trip.
func (s *Service) Recent(sessionID string) []event.Message {
	return s.replay.Recent(sessionID)
}

// Waiting lists sessions awaiting staff pickup, oldest first.
func (s *Service) Waiting(ctx context.Context, limit int64) ([]session.WaitingEntry, error) {
	return s.sessions.ListWaiting(ctx, limit)
}

// FAQs lists reference entries, optionally narrowed to one category.
func (s *Service) FAQs(ctx context.Context, category string) ([]faq.FAQ, error) {
	if category != "" {
		return s.faqs.ListByCategory(ctx, category)
	}
	return s.faqs.List(ctx)
}

// Typing relays an ephemeral typing signal without persistence.
func (s *Service) Typing(ctx context.Context, from auth.Identity, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.IsClosed() {
		return nil // typing into a dead session is silently dropped
	}

	sender := event.SenderUser
	if from.IsStaff() {
		sender = event.SenderAdmin
	}
	if err := s.rt.PublishTyping(event.Typing{Sender: sender, SessionID: sessionID}); err != nil {
		return fmt.Errorf("support: typing publish: %w", err)
	}
	metrics.TypingSignalsTotal.Inc()
	return nil
}

// StartReplayFeed keeps the replay window fed from the realtime stream.
// The API server and the gateway each run their own Service, so a message
// persisted by one process only reaches the other's replay buffer through
// NATS. The feed also drops a session's window once its closed status goes
// out. Callers close the returned handle on shutdown.
func (s *Service) StartReplayFeed() (*realtime.Subscription, error) {
	return s.rt.SubscribeFeed(realtime.Handlers{
		OnMessage: func(ev event.Message) {
			s.replay.Add(ev.SessionID, ev)
		},
		OnStatus: func(ev event.Status) {
			if ev.Status == session.StatusClosed {
				s.replay.Drop(ev.SessionID)
			}
		},
	})
}

// persistAndPublish inserts a message row, fans out the insert event and
// records it in the replay window.
func (s *Service) persistAndPublish(ctx context.Context, sessionID, sender, body string, actions []event.Action) (event.Message, error) {
	row := &message.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Body:      body,
		Actions:   actions,
	}
	if err := s.messages.Insert(ctx, row); err != nil {
		return event.Message{}, err
	}

	ev := row.Event()
	if err := s.rt.PublishMessage(ev); err != nil {
		log.Printf("[support] message publish failed session=%s id=%s: %v", sessionID, row.ID, err)
	}
	s.replay.Add(sessionID, ev)
	metrics.MessagesTotal.WithLabelValues(sender).Inc()
	return ev, nil
}

// persistTranscriptNotice stores a bot marker row for history readers. It
// is deliberately not published: connected widgets derive the same notice
// locally from the session-status update.
func (s *Service) persistTranscriptNotice(ctx context.Context, sessionID, body string) error {
	row := &message.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    event.SenderBot,
		Body:      body,
	}
	return s.messages.Insert(ctx, row)
}
