package widget

import (
	"sync"

	"github.com/pesocareers/support-chat/internal/event"
)

// Log is the ordered, append-only list of messages displayed by the widget.
// Entries are deduplicated by id: both an optimistic local append and the
// realtime echo of the same message can occur, and only the first wins.
// Arrival order is display order.
type Log struct {
	mu      sync.RWMutex
	entries []event.Message
	seen    map[string]bool
}

// NewLog creates an empty message log.
func NewLog() *Log {
	return &Log{seen: make(map[string]bool)}
}

// Append adds a message to the end of the log. It is a no-op if an entry
// with the same id is already present. Returns true if the entry was added.
func (l *Log) Append(msg event.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[msg.ID] {
		return false
	}
	l.seen[msg.ID] = true
	l.entries = append(l.entries, msg)
	return true
}

// Seed replaces the log contents with the given entries. Used once when a
// new concern starts, to show the user's own text and a waiting placeholder
// before any server echo arrives.
func (l *Log) Seed(entries ...event.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = l.entries[:0]
	l.seen = make(map[string]bool, len(entries))
	for _, e := range entries {
		if l.seen[e.ID] {
			continue
		}
		l.seen[e.ID] = true
		l.entries = append(l.entries, e)
	}
}

// Remove deletes the entry with the given id, if present. Used to drop the
// waiting placeholder once a staff member joins.
func (l *Log) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.seen[id] {
		return
	}
	delete(l.seen, id)
	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = l.entries[:0]
	l.seen = make(map[string]bool)
}

// Entries returns a copy of the log in display order.
func (l *Log) Entries() []event.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]event.Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
