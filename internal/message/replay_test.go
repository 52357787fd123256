package message

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pesocareers/support-chat/internal/event"
)

func TestReplayAddAndRecent(t *testing.T) {
	rb := NewReplayBuffer()

	rb.Add("s1", event.Message{ID: "m1", Body: "hello", CreatedAt: 1})
	rb.Add("s1", event.Message{ID: "m2", Body: "hi", CreatedAt: 2})

	msgs := rb.Recent("s1")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("messages out of order: %+v", msgs)
	}
}

func TestReplayWraparound(t *testing.T) {
	rb := NewReplayBuffer()

	total := MaxReplayMessages + 4
	for i := 1; i <= total; i++ {
		rb.Add("s1", event.Message{ID: fmt.Sprintf("m%d", i), CreatedAt: int64(i)})
	}

	msgs := rb.Recent("s1")
	if len(msgs) != MaxReplayMessages {
		t.Fatalf("expected %d messages, got %d", MaxReplayMessages, len(msgs))
	}
	// Should contain the most recent MaxReplayMessages in order.
	for i, m := range msgs {
		expected := fmt.Sprintf("m%d", i+total-MaxReplayMessages+1)
		if m.ID != expected {
			t.Errorf("index %d: expected %q, got %q", i, expected, m.ID)
		}
	}
}

func TestReplayDuplicateIDSkipped(t *testing.T) {
	rb := NewReplayBuffer()

	// The local insert path and the realtime feed both deliver the same
	// event; only one copy may land in the window.
	rb.Add("s1", event.Message{ID: "m1", Body: "first"})
	rb.Add("s1", event.Message{ID: "m1", Body: "first"})
	rb.Add("s1", event.Message{ID: "m2", Body: "second"})
	rb.Add("s1", event.Message{ID: "m1", Body: "first"})

	msgs := rb.Recent("s1")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("messages out of order: %+v", msgs)
	}
}

func TestReplayUnknownSession(t *testing.T) {
	rb := NewReplayBuffer()

	msgs := rb.Recent("missing")
	if msgs == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(msgs) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(msgs))
	}
}

func TestReplayDrop(t *testing.T) {
	rb := NewReplayBuffer()

	rb.Add("s1", event.Message{ID: "m1"})
	rb.Drop("s1")

	if msgs := rb.Recent("s1"); len(msgs) != 0 {
		t.Fatalf("expected 0 messages after drop, got %d", len(msgs))
	}

	// Dropping an unknown session must not panic.
	rb.Drop("missing")
}

func TestReplaySessionsIsolated(t *testing.T) {
	rb := NewReplayBuffer()

	rb.Add("s1", event.Message{ID: "a1"})
	rb.Add("s2", event.Message{ID: "b1"})
	rb.Add("s1", event.Message{ID: "a2"})

	if msgs := rb.Recent("s1"); len(msgs) != 2 {
		t.Fatalf("s1: expected 2 messages, got %d", len(msgs))
	}
	if msgs := rb.Recent("s2"); len(msgs) != 1 || msgs[0].ID != "b1" {
		t.Fatalf("s2: unexpected messages %+v", msgs)
	}
}

func TestReplayConcurrentAccess(t *testing.T) {
	rb := NewReplayBuffer()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			session := fmt.Sprintf("s%d", g%2)
			for i := 0; i < 100; i++ {
				rb.Add(session, event.Message{ID: fmt.Sprintf("g%d-m%d", g, i)})
				rb.Recent(session)
			}
		}(g)
	}
	wg.Wait()

	if len(rb.Recent("s0")) != MaxReplayMessages {
		t.Errorf("expected full ring for s0, got %d", len(rb.Recent("s0")))
	}
}
