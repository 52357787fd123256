package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// waitingKey is the Redis sorted set of sessions awaiting a staff member.
// The score is the creation time in milliseconds so staff pick up the
// longest-waiting concern first.
const waitingKey = "chat:waiting"

// WaitingEntry is one session awaiting pickup, as shown in the staff queue.
type WaitingEntry struct {
	SessionID  string `json:"session_id"`
	EnqueuedMs int64  `json:"enqueued_ms"` // creation time in unix milliseconds
}

// ListWaiting returns up to limit waiting session ids, oldest first.
func (s *Store) ListWaiting(ctx context.Context, limit int64) ([]WaitingEntry, error) {
	results, err := s.rdb.ZRangeWithScores(ctx, waitingKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: list waiting: %w", err)
	}

	entries := make([]WaitingEntry, 0, len(results))
	for _, z := range results {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, WaitingEntry{SessionID: id, EnqueuedMs: int64(z.Score)})
	}
	return entries, nil
}

// WaitingCount returns the number of sessions currently awaiting pickup.
func (s *Store) WaitingCount(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, waitingKey).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("session: waiting count: %w", err)
	}
	return n, nil
}
