package message

import (
	"sync"

	"github.com/pesocareers/support-chat/internal/event"
)

// MaxReplayMessages is the number of recent messages retained per session
// for replay to late or resubscribing realtime consumers.
const MaxReplayMessages = 20

// ReplayBuffer keeps the last N message events per session in memory. It is
// goroutine-safe and uses a fixed-size ring per session. The gateway feeds
// every published message through it and replays the ring whenever a client
// (re)subscribes, so a dropped realtime connection can catch up without the
// client polling history.
type ReplayBuffer struct {
	mu    sync.RWMutex
	rings map[string]*ring // sessionID -> ring
}

type ring struct {
	items []event.Message
	pos   int
	count int
}

// NewReplayBuffer creates an empty ReplayBuffer.
func NewReplayBuffer() *ReplayBuffer {
	return &ReplayBuffer{rings: make(map[string]*ring)}
}

// Add appends a message event to the session's ring, evicting the oldest
// entry once the ring is full. An event whose id is already buffered is
// skipped, so the local insert path and the realtime feed can both deliver
// the same message without duplicating it in the window.
func (b *ReplayBuffer) Add(sessionID string, ev event.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[sessionID]
	if !ok {
		r = &ring{items: make([]event.Message, MaxReplayMessages)}
		b.rings[sessionID] = r
	}

	for i := 0; i < r.count; i++ {
		idx := (r.pos - 1 - i + MaxReplayMessages) % MaxReplayMessages
		if r.items[idx].ID == ev.ID {
			return
		}
	}

	r.items[r.pos] = ev
	r.pos = (r.pos + 1) % MaxReplayMessages
	if r.count < MaxReplayMessages {
		r.count++
	}
}

// Recent returns the session's buffered events oldest first. Returns an
// empty slice for sessions with no buffer.
func (b *ReplayBuffer) Recent(sessionID string) []event.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[sessionID]
	if !ok {
		return []event.Message{}
	}

	out := make([]event.Message, r.count)
	start := (r.pos - r.count + MaxReplayMessages) % MaxReplayMessages
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(start+i)%MaxReplayMessages]
	}
	return out
}

// Drop discards the session's ring. Called when the session closes.
func (b *ReplayBuffer) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.rings, sessionID)
}
