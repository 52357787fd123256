package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/message"
	"github.com/pesocareers/support-chat/internal/protocol"
	"github.com/pesocareers/support-chat/internal/realtime"
	"github.com/pesocareers/support-chat/internal/support"
)

// Gateway bridges widget sockets to the support service: client frames
// become service calls, and the session's NATS events are forwarded back
// down the socket. Each socket carries at most one attached chat session.
type Gateway struct {
	svc *support.Service
	rt  *realtime.Client
	d   *MessageDispatcher
}

// NewGateway registers the support-chat message handlers on the dispatcher.
func NewGateway(svc *support.Service, rt *realtime.Client, d *MessageDispatcher) *Gateway {
	g := &Gateway{svc: svc, rt: rt, d: d}

	d.Register(protocol.TypeRequestChat, g.handleRequestChat)
	d.Register(protocol.TypeMessage, g.handleMessage)
	d.Register(protocol.TypeTyping, g.handleTyping)
	d.Register(protocol.TypeEndChat, g.handleEndChat)

	return g
}

// OnDisconnect releases the connection's realtime subscription. Wire it via
// Server.SetOnDisconnect.
func (g *Gateway) OnDisconnect(conn *Connection) {
	conn.DetachSession()
}

func (g *Gateway) handleRequestChat(conn *Connection, msg interface{}) {
	req := msg.(protocol.RequestChatMsg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := g.svc.RequestChat(ctx, conn.Identity, req.Concern)
	if err != nil {
		g.sendServiceError(conn, err)
		return
	}

	g.attach(conn, res.Session.ID)

	data, err := protocol.NewServerMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{
		SessionID: res.Session.ID,
		Message:   res.Message,
	})
	if err != nil {
		log.Printf("[ws] failed to build session_created conn=%s: %v", conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[ws] failed to send session_created conn=%s: %v", conn.ID, err)
	}
}

func (g *Gateway) handleMessage(conn *Connection, msg interface{}) {
	req := msg.(protocol.ChatMsg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A reconnecting widget sends into a session this socket has not
	// attached yet; bind it first so realtime events flow again.
	if conn.SessionID() != req.SessionID {
		if !g.reattach(conn, req.SessionID) {
			return
		}
	}

	persisted, err := g.svc.SendMessage(ctx, conn.Identity, req.SessionID, req.Body)
	if err != nil {
		g.sendServiceError(conn, err)
		return
	}

	// Direct echo with the server-assigned id; the NATS copy dedups
	// client-side.
	g.forwardMessage(conn, persisted)
}

func (g *Gateway) handleTyping(conn *Connection, msg interface{}) {
	req := msg.(protocol.TypingMsg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := g.svc.Typing(ctx, conn.Identity, req.SessionID); err != nil {
		log.Printf("[ws] typing relay failed conn=%s session=%s: %v", conn.ID, req.SessionID, err)
	}
}

func (g *Gateway) handleEndChat(conn *Connection, msg interface{}) {
	req := msg.(protocol.EndChatMsg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.svc.Close(ctx, conn.Identity, req.SessionID); err != nil {
		g.sendServiceError(conn, err)
	}
	// The closed status arrives through the subscription; the handle is
	// kept so that update still reaches the client.
}

// reattach binds an existing session to the socket after verifying the
// caller may access it, then replays the recent-message window so the
// client catches up on anything missed while disconnected.
func (g *Gateway) reattach(conn *Connection, sessionID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := g.svc.Session(ctx, sessionID)
	if err != nil {
		g.sendServiceError(conn, err)
		return false
	}
	if !conn.Identity.IsStaff() && sess.RequesterID != conn.Identity.UserID {
		g.sendServiceError(conn, support.ErrNotParticipant)
		return false
	}

	g.attach(conn, sessionID)

	for _, ev := range g.svc.Recent(sessionID) {
		g.forwardMessage(conn, ev)
	}
	return true
}

// attach subscribes the connection to the session's NATS subjects,
// forwarding every event down the socket as a typed server message. The
// handle is opened outside the client's one-per-session registry: several
// sockets (seeker views, a staff console) can be attached to the same
// session, and one attaching must not cut off the others.
func (g *Gateway) attach(conn *Connection, sessionID string) {
	sub, err := g.rt.OpenSubscription(sessionID, realtime.Handlers{
		OnMessage: func(ev event.Message) {
			g.forwardMessage(conn, ev)
		},
		OnStatus: func(ev event.Status) {
			g.forward(conn, protocol.TypeSessionStatus, protocol.SessionStatusMsg{
				SessionID: ev.SessionID,
				Status:    ev.Status,
			})
		},
		OnTyping: func(ev event.Typing) {
			g.forward(conn, protocol.TypePeerTyping, protocol.PeerTypingMsg{
				SessionID: ev.SessionID,
				Sender:    ev.Sender,
			})
		},
	})
	if err != nil {
		// The client can still send over this socket; it just won't get
		// pushes until it reattaches.
		log.Printf("[ws] subscribe failed conn=%s session=%s: %v", conn.ID, sessionID, err)
		return
	}

	conn.AttachSession(sessionID, sub)
}

func (g *Gateway) forwardMessage(conn *Connection, ev event.Message) {
	g.forward(conn, protocol.TypeChatMessage, protocol.ServerChatMsg{Message: ev})
}

func (g *Gateway) forward(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[ws] failed to build %s conn=%s: %v", msgType, conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[ws] failed to send %s conn=%s: %v", msgType, conn.ID, err)
	}
}

// sendServiceError maps service errors onto wire error codes.
func (g *Gateway) sendServiceError(conn *Connection, err error) {
	switch {
	case errors.Is(err, support.ErrSessionNotFound):
		g.d.sendError(conn, "session_not_found", "session does not exist or has expired")
	case errors.Is(err, support.ErrSessionClosed):
		g.d.sendError(conn, "session_closed", "session is closed")
	case errors.Is(err, support.ErrNotParticipant):
		g.d.sendError(conn, "forbidden", "not a participant of this session")
	case errors.Is(err, message.ErrInvalidBody):
		g.d.sendError(conn, "invalid_message", err.Error())
	default:
		log.Printf("[ws] service error conn=%s: %v", conn.ID, err)
		g.d.sendError(conn, "internal", "internal server error")
	}
}
