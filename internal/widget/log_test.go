package widget

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pesocareers/support-chat/internal/event"
)

func TestLogAppendDeduplicates(t *testing.T) {
	l := NewLog()

	if !l.Append(event.Message{ID: "a", Body: "first"}) {
		t.Error("first append should succeed")
	}
	if l.Append(event.Message{ID: "a", Body: "duplicate"}) {
		t.Error("duplicate id should be rejected")
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", l.Len())
	}
	if l.Entries()[0].Body != "first" {
		t.Error("original entry must win over the duplicate")
	}
}

func TestLogPreservesArrivalOrder(t *testing.T) {
	l := NewLog()
	for i := 0; i < 5; i++ {
		l.Append(event.Message{ID: fmt.Sprintf("m-%d", i)})
	}

	entries := l.Entries()
	for i, m := range entries {
		if m.ID != fmt.Sprintf("m-%d", i) {
			t.Fatalf("entry %d out of order: %q", i, m.ID)
		}
	}
}

func TestLogSeedReplaces(t *testing.T) {
	l := NewLog()
	l.Append(event.Message{ID: "old"})

	l.Seed(
		event.Message{ID: "a"},
		event.Message{ID: "b"},
		event.Message{ID: "a", Body: "dup"},
	)

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after seed, got %d", len(entries))
	}
	if entries[0].ID != "a" || entries[1].ID != "b" {
		t.Errorf("unexpected seed result: %+v", entries)
	}

	// Seeded ids still block duplicates.
	if l.Append(event.Message{ID: "b"}) {
		t.Error("seeded id should be known to dedup")
	}
}

func TestLogRemove(t *testing.T) {
	l := NewLog()
	l.Append(event.Message{ID: "keep"})
	l.Append(event.Message{ID: "drop"})

	l.Remove("drop")

	if l.Len() != 1 || l.Entries()[0].ID != "keep" {
		t.Errorf("unexpected entries after remove: %+v", l.Entries())
	}

	// A removed id may be appended again.
	if !l.Append(event.Message{ID: "drop"}) {
		t.Error("removed id should be appendable again")
	}
}

func TestLogClear(t *testing.T) {
	l := NewLog()
	l.Append(event.Message{ID: "a"})
	l.Clear()

	if l.Len() != 0 {
		t.Errorf("expected empty log, got %d entries", l.Len())
	}
	if !l.Append(event.Message{ID: "a"}) {
		t.Error("cleared log should accept previously seen ids")
	}
}

func TestLogEntriesReturnsCopy(t *testing.T) {
	l := NewLog()
	l.Append(event.Message{ID: "a", Body: "original"})

	entries := l.Entries()
	entries[0].Body = "mutated"

	if l.Entries()[0].Body != "original" {
		t.Error("Entries must return a copy")
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Append(event.Message{ID: fmt.Sprintf("m-%d", i)})
			}
		}()
	}
	wg.Wait()

	if l.Len() != 100 {
		t.Errorf("expected 100 unique entries, got %d", l.Len())
	}
}
