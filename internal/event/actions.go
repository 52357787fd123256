package event

import (
	"encoding/json"
	"strings"
)

// ButtonsMarker separates display text from the serialized quick-reply list
// in legacy message bodies. The old bot pipeline emits bodies of the form
//
//	"Pick one\n\n[BUTTONS][{"label":"Yes","value":"yes"}]"
//
// New producers set Message.Actions directly; this marker is decoded once
// at ingress and never re-encoded into display text.
const ButtonsMarker = "\n\n[BUTTONS]"

// DecodeBody splits a legacy message body into display text and quick-reply
// actions. Bodies without the marker are returned unchanged with nil
// actions. A malformed action list degrades to plain text with the garbled
// suffix dropped, never an error.
func DecodeBody(body string) (string, []Action) {
	idx := strings.Index(body, ButtonsMarker)
	if idx < 0 {
		return body, nil
	}

	text := body[:idx]
	raw := body[idx+len(ButtonsMarker):]

	var actions []Action
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return text, nil
	}
	if len(actions) == 0 {
		return text, nil
	}
	return text, actions
}

// EncodeBody renders text plus actions in the legacy in-band format. It is
// used only for compatibility with consumers that still read the old shape;
// an empty action list yields the text unchanged.
func EncodeBody(text string, actions []Action) string {
	if len(actions) == 0 {
		return text
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		return text
	}
	return text + ButtonsMarker + string(raw)
}

// Normalize decodes any legacy button suffix left in the message body into
// the Actions field. Messages that already carry structured actions keep
// them; the body is always reduced to display text.
func (m *Message) Normalize() {
	text, actions := DecodeBody(m.Body)
	m.Body = text
	if len(m.Actions) == 0 {
		m.Actions = actions
	}
}
