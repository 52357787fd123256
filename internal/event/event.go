// Package event defines the payloads published on NATS for real-time
// delivery to widget clients: inserted chat messages, session status
// updates, and ephemeral typing broadcasts. It also owns the codec for
// quick-reply actions, including the legacy in-band "[BUTTONS]" body
// suffix still produced by the old bot pipeline.
package event

// Sender role constants for chat messages and typing signals.
const (
	SenderUser  = "user"
	SenderAdmin = "admin"
	SenderBot   = "bot"
)

// Action is a quick-reply button attached to a message. Clicking one sends
// its Value as an ordinary user message through the normal send path.
type Action struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Message is published on the per-session message subject whenever a chat
// message row is inserted. Body holds display text only; quick replies
// travel in Actions.
type Message struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Sender    string   `json:"sender"`
	Body      string   `json:"message"`
	Actions   []Action `json:"actions,omitempty"`
	CreatedAt int64    `json:"created_at"` // unix timestamp, server-assigned
}

// Status is published on the per-session status subject when the session
// record changes state (admin joined, chat closed).
type Status struct {
	SessionID string `json:"id"`
	Status    string `json:"status"`
}

// Typing is the ephemeral typing broadcast. It is never persisted; the
// receiving client derives an "is typing" flag that expires on its own.
type Typing struct {
	Sender    string `json:"sender"`
	SessionID string `json:"session_id"`
}
