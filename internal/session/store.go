// Package session manages support-chat sessions. A session is created when
// a job seeker submits a concern, becomes active when a staff member joins,
// and is closed when either party ends the conversation. State lives in
// Redis; transition legality is enforced atomically with Lua scripts so
// that closed stays terminal no matter how calls interleave.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "chat:session:"

	// SessionTTL is the time-to-live for open session keys.
	SessionTTL = 12 * time.Hour

	// ClosedTTL is the shortened time-to-live applied once a session is
	// closed, so late realtime consumers can still resolve the id.
	ClosedTTL = 1 * time.Hour

	// Status constants for the session state machine.
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

// Join result codes returned by Store.Join.
const (
	JoinOK          = 1
	JoinNotFound    = -1
	JoinWrongStatus = -2
)

// Session is a support-chat session as stored in Redis.
type Session struct {
	ID          string `redis:"id"`
	RequesterID string `redis:"requester_id"` // authenticated job seeker
	AdminID     string `redis:"admin_id"`     // empty until a staff member joins
	Status      string `redis:"status"`       // waiting | active | closed
	CreatedAt   int64  `redis:"created_at"`   // unix timestamp
	ClosedAt    int64  `redis:"closed_at"`    // unix timestamp, 0 while open
}

// IsClosed reports whether the session has reached its terminal state.
func (s *Session) IsClosed() bool {
	return s.Status == StatusClosed
}

// Store manages session state in Redis.
type Store struct {
	rdb         *redis.Client
	joinScript  *redis.Script
	closeScript *redis.Script
}

// NewStore creates a session store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:         rdb,
		joinScript:  redis.NewScript(joinLua),
		closeScript: redis.NewScript(closeLua),
	}
}

// Dial connects to Redis at addr, verifies the connection, and returns a
// ready Store along with the underlying client for reuse by other packages.
func Dial(addr string) (*Store, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return NewStore(client), client, nil
}

// Create stores a new waiting session and enqueues it for staff pickup.
func (s *Store) Create(ctx context.Context, sessionID, requesterID string) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":           sessionID,
		"requester_id": requesterID,
		"admin_id":     "",
		"status":       StatusWaiting,
		"created_at":   now,
		"closed_at":    0,
	})
	pipe.Expire(ctx, key, SessionTTL)
	pipe.ZAdd(ctx, waitingKey, redis.Z{Score: float64(time.Now().UnixMilli()), Member: sessionID})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("session: create %s: %w", sessionID, err)
	}
	return nil
}

// Get retrieves a session. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var sess Session
	if err := s.rdb.HGetAll(ctx, key).Scan(&sess); err != nil {
		return nil, fmt.Errorf("session: get %s: %w", sessionID, err)
	}
	if sess.ID == "" {
		return nil, nil // not found
	}
	return &sess, nil
}

// Join atomically transitions a waiting session to active and records the
// joining staff member. Result codes:
//
//	JoinOK          session is now active
//	JoinNotFound    no such session
//	JoinWrongStatus session was not waiting (already active or closed)
func (s *Store) Join(ctx context.Context, sessionID, adminID string) (int, error) {
	key := SessionPrefix + sessionID
	result, err := s.joinScript.Run(ctx, s.rdb, []string{key, waitingKey}, adminID, sessionID).Int()
	if err != nil {
		return JoinNotFound, fmt.Errorf("session: join %s: %w", sessionID, err)
	}
	return result, nil
}

// Close transitions a session to its terminal closed state. Closing an
// already-closed session is a harmless no-op; the first close wins. Returns
// true if this call performed the transition.
func (s *Store) Close(ctx context.Context, sessionID string) (bool, error) {
	key := SessionPrefix + sessionID
	result, err := s.closeScript.Run(ctx, s.rdb,
		[]string{key, waitingKey},
		time.Now().Unix(), sessionID, int(ClosedTTL.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("session: close %s: %w", sessionID, err)
	}
	return result == 1, nil
}

// RefreshTTL extends an open session's expiry. Called on message activity.
func (s *Store) RefreshTTL(ctx context.Context, sessionID string) error {
	return s.rdb.Expire(ctx, SessionPrefix+sessionID, SessionTTL).Err()
}

// Delete removes a session outright. Used by tests and admin tooling only;
// the normal lifecycle ends with Close and TTL expiry.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, SessionPrefix+sessionID)
	pipe.ZRem(ctx, waitingKey, sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// joinLua moves a session from waiting to active and removes it from the
// staff pickup queue. Any other starting status is rejected, which keeps
// closed terminal and prevents two admins claiming the same session.
const joinLua = `
local key = KEYS[1]
local queue = KEYS[2]
local admin_id = ARGV[1]
local session_id = ARGV[2]

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status ~= 'waiting' then return -2 end

redis.call('HSET', key, 'status', 'active', 'admin_id', admin_id)
redis.call('ZREM', queue, session_id)
return 1
`

// closeLua makes closed terminal: a session that is already closed is left
// untouched (returns 0), anything else transitions exactly once (returns 1).
const closeLua = `
local key = KEYS[1]
local queue = KEYS[2]
local now = ARGV[1]
local session_id = ARGV[2]
local ttl = tonumber(ARGV[3])

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status == 'closed' then return 0 end

redis.call('HSET', key, 'status', 'closed', 'closed_at', now)
redis.call('ZREM', queue, session_id)
redis.call('EXPIRE', key, ttl)
return 1
`
