// Package message provides PostgreSQL-backed storage for chat messages.
// Messages are immutable once inserted; ordering is by the server-assigned
// created_at timestamp. Quick-reply actions are stored as JSONB alongside
// the display text rather than smuggled inside it.
package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pesocareers/support-chat/internal/event"
)

// Message is a persisted chat message row.
type Message struct {
	ID        string
	SessionID string
	Sender    string // user | admin | bot
	Body      string
	Actions   []event.Action
	CreatedAt time.Time
}

// Event converts the row into its realtime payload form.
func (m *Message) Event() event.Message {
	return event.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Sender:    m.Sender,
		Body:      m.Body,
		Actions:   m.Actions,
		CreatedAt: m.CreatedAt.Unix(),
	}
}

// Store manages chat messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert persists a message and fills in the server-assigned creation
// timestamp. The row is immutable after this call.
func (s *Store) Insert(ctx context.Context, msg *Message) error {
	var actionsJSON []byte
	if len(msg.Actions) > 0 {
		var err error
		actionsJSON, err = json.Marshal(msg.Actions)
		if err != nil {
			return fmt.Errorf("message: marshal actions: %w", err)
		}
	}

	const query = `
		INSERT INTO chat_messages (id, session_id, sender, body, actions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		msg.ID, msg.SessionID, msg.Sender, msg.Body, actionsJSON,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("message: insert: %w", err)
	}
	return nil
}

// ListBySession returns a session's messages in creation order, capped at
// limit rows. A limit of 0 means no cap.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `
		SELECT id, session_id, sender, body, actions, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("message: list session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m           Message
			actionsJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Body, &actionsJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		if len(actionsJSON) > 0 {
			if err := json.Unmarshal(actionsJSON, &m.Actions); err != nil {
				return nil, fmt.Errorf("message: unmarshal actions for %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: list session %s: %w", sessionID, err)
	}
	return messages, nil
}

// CountBySession returns how many messages a session has accumulated.
func (s *Store) CountBySession(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("message: count session %s: %w", sessionID, err)
	}
	return count, nil
}
