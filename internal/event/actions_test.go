package event

import "testing"

func TestDecodeBody_PlainText(t *testing.T) {
	text, actions := DecodeBody("Hello, how can we help?")
	if text != "Hello, how can we help?" {
		t.Errorf("unexpected text %q", text)
	}
	if actions != nil {
		t.Errorf("expected nil actions, got %v", actions)
	}
}

func TestDecodeBody_WithButtons(t *testing.T) {
	body := "Pick one" + ButtonsMarker + `[{"label":"Yes","value":"yes"},{"label":"No","value":"no"}]`

	text, actions := DecodeBody(body)
	if text != "Pick one" {
		t.Errorf("expected text %q, got %q", "Pick one", text)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].Label != "Yes" || actions[0].Value != "yes" {
		t.Errorf("unexpected first action: %+v", actions[0])
	}
	if actions[1].Label != "No" || actions[1].Value != "no" {
		t.Errorf("unexpected second action: %+v", actions[1])
	}
}

func TestDecodeBody_MalformedButtons(t *testing.T) {
	body := "Pick one" + ButtonsMarker + `[{"label":"Yes","va`

	text, actions := DecodeBody(body)
	if text != "Pick one" {
		t.Errorf("expected text %q, got %q", "Pick one", text)
	}
	if actions != nil {
		t.Errorf("expected buttons omitted on parse failure, got %v", actions)
	}
}

func TestDecodeBody_EmptyButtonList(t *testing.T) {
	body := "Just text" + ButtonsMarker + `[]`

	text, actions := DecodeBody(body)
	if text != "Just text" {
		t.Errorf("expected text %q, got %q", "Just text", text)
	}
	if actions != nil {
		t.Errorf("expected nil actions for empty list, got %v", actions)
	}
}

func TestEncodeBody_RoundTrip(t *testing.T) {
	in := []Action{{Label: "Yes", Value: "yes"}}

	body := EncodeBody("Pick one", in)
	text, out := DecodeBody(body)

	if text != "Pick one" {
		t.Errorf("expected text %q, got %q", "Pick one", text)
	}
	if len(out) != 1 || out[0].Label != "Yes" || out[0].Value != "yes" {
		t.Errorf("round-trip mismatch: %+v", out)
	}
}

func TestEncodeBody_NoActions(t *testing.T) {
	if body := EncodeBody("plain", nil); body != "plain" {
		t.Errorf("expected unchanged body, got %q", body)
	}
}

func TestNormalize_LegacySuffix(t *testing.T) {
	m := Message{
		ID:   "m1",
		Body: "Choose" + ButtonsMarker + `[{"label":"A","value":"a"}]`,
	}

	m.Normalize()

	if m.Body != "Choose" {
		t.Errorf("expected body %q, got %q", "Choose", m.Body)
	}
	if len(m.Actions) != 1 || m.Actions[0].Value != "a" {
		t.Errorf("unexpected actions: %+v", m.Actions)
	}
}

func TestNormalize_StructuredActionsKept(t *testing.T) {
	m := Message{
		ID:      "m2",
		Body:    "Choose" + ButtonsMarker + `[{"label":"Old","value":"old"}]`,
		Actions: []Action{{Label: "New", Value: "new"}},
	}

	m.Normalize()

	if m.Body != "Choose" {
		t.Errorf("expected body %q, got %q", "Choose", m.Body)
	}
	if len(m.Actions) != 1 || m.Actions[0].Value != "new" {
		t.Errorf("structured actions should win: %+v", m.Actions)
	}
}
