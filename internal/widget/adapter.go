package widget

import (
	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/realtime"
)

// NATSSubscriber adapts *realtime.Client to the Subscriber interface.
type NATSSubscriber struct {
	Client *realtime.Client
}

func (s NATSSubscriber) Subscribe(sessionID string, h realtime.Handlers) (Subscription, error) {
	sub, err := s.Client.Subscribe(sessionID, h)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// StaticIdentity is an IdentityProvider for a fixed, already-authenticated
// user, as used by the terminal client.
type StaticIdentity struct {
	ID auth.Identity
}

func (s StaticIdentity) Current() (auth.Identity, bool) {
	return s.ID, s.ID.UserID != ""
}
