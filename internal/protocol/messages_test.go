package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pesocareers/support-chat/internal/event"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid request_chat message
// ---------------------------------------------------------------------------

func TestParseClientMessage_RequestChat(t *testing.T) {
	input := []byte(`{"type":"request_chat","concern":"I cannot find the exam schedule"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeRequestChat {
		t.Fatalf("expected type %q, got %q", TypeRequestChat, msgType)
	}

	rc, ok := msg.(RequestChatMsg)
	if !ok {
		t.Fatalf("expected RequestChatMsg, got %T", msg)
	}
	if rc.Concern != "I cannot find the exam schedule" {
		t.Errorf("unexpected concern: %q", rc.Concern)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message (chat) message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"message","session_id":"abc-123","body":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.SessionID != "abc-123" {
		t.Errorf("expected session_id %q, got %q", "abc-123", cm.SessionID)
	}
	if cm.Body != "Hello!" {
		t.Errorf("expected body %q, got %q", "Hello!", cm.Body)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a session_created server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_SessionCreated(t *testing.T) {
	payload := SessionCreatedMsg{
		SessionID: "uuid-456",
		Message: event.Message{
			ID:        "msg-1",
			SessionID: "uuid-456",
			Sender:    event.SenderUser,
			Body:      "My application is stuck",
		},
	}

	data, err := NewServerMessage(TypeSessionCreated, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeSessionCreated {
		t.Errorf("expected type %q, got %v", TypeSessionCreated, result["type"])
	}
	if result["session_id"] != "uuid-456" {
		t.Errorf("expected session_id %q, got %v", "uuid-456", result["session_id"])
	}

	msg, ok := result["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected message to be an object, got %T", result["message"])
	}
	if msg["id"] != "msg-1" {
		t.Errorf("expected message id %q, got %v", "msg-1", msg["id"])
	}
	if msg["sender"] != event.SenderUser {
		t.Errorf("expected sender %q, got %v", event.SenderUser, msg["sender"])
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: Server-only types are rejected on the client path
// ---------------------------------------------------------------------------

func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	input := []byte(`{"type":"session_status","session_id":"s","status":"closed"}`)

	_, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for server-only message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message, got %v", msg)
	}
}

// ---------------------------------------------------------------------------
// Test: Round-trip fidelity (marshal -> unmarshal)
// ---------------------------------------------------------------------------

func TestRoundTrip_ChatMsg(t *testing.T) {
	original := ChatMsg{
		Type:      TypeMessage,
		SessionID: "sess-9",
		Body:      "Is my resume visible to employers?",
	}

	// Marshal to JSON.
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	// Parse back through the protocol parser.
	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	decoded, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if decoded != original {
		t.Errorf("round-trip mismatch: expected %+v, got %+v", original, decoded)
	}
}

func TestRoundTrip_ServerChatMsg(t *testing.T) {
	original := ServerChatMsg{
		Type: TypeChatMessage,
		Message: event.Message{
			ID:        "test-uuid",
			SessionID: "sess-1",
			Sender:    event.SenderAdmin,
			Body:      "Your application is under review.",
			Actions: []event.Action{
				{Label: "Thanks", Value: "thanks"},
			},
			CreatedAt: 1700000000000,
		},
	}

	// Create server message bytes.
	data, err := NewServerMessage(TypeChatMessage, original)
	if err != nil {
		t.Fatalf("failed to create server message: %v", err)
	}

	// Unmarshal back into the struct.
	var decoded ServerChatMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.Type != TypeChatMessage {
		t.Errorf("type mismatch: expected %q, got %q", TypeChatMessage, decoded.Type)
	}
	if decoded.Message.ID != original.Message.ID {
		t.Errorf("id mismatch: expected %q, got %q", original.Message.ID, decoded.Message.ID)
	}
	if decoded.Message.Sender != original.Message.Sender {
		t.Errorf("sender mismatch: expected %q, got %q", original.Message.Sender, decoded.Message.Sender)
	}
	if decoded.Message.CreatedAt != original.Message.CreatedAt {
		t.Errorf("created_at mismatch: expected %d, got %d", original.Message.CreatedAt, decoded.Message.CreatedAt)
	}
	if len(decoded.Message.Actions) != 1 || decoded.Message.Actions[0].Value != "thanks" {
		t.Errorf("actions mismatch: %+v", decoded.Message.Actions)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope

	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected an error for a missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{not json`)
	var env Envelope

	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
}

func TestEnvelope_PreservesRawPayload(t *testing.T) {
	input := []byte(`{"type":"typing","session_id":"sess-2"}`)
	var env Envelope

	if err := json.Unmarshal(input, &env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != TypeTyping {
		t.Errorf("expected type %q, got %q", TypeTyping, env.Type)
	}

	var tm TypingMsg
	if err := json.Unmarshal(env.Raw, &tm); err != nil {
		t.Fatalf("raw payload should decode: %v", err)
	}
	if tm.SessionID != "sess-2" {
		t.Errorf("expected session_id %q, got %q", "sess-2", tm.SessionID)
	}
}
