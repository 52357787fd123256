package message

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateBody_OK(t *testing.T) {
	if err := ValidateBody("I have a question about my application"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateBody_Empty(t *testing.T) {
	for _, body := range []string{"", "   ", "\n\t"} {
		if err := ValidateBody(body); err == nil {
			t.Errorf("expected error for body %q", body)
		}
	}
}

func TestValidateBody_TooManyChars(t *testing.T) {
	body := strings.Repeat("a", MaxBodyChars+1)
	if err := ValidateBody(body); err == nil {
		t.Error("expected error for over-length body")
	}
}

func TestValidateBody_TooManyBytes(t *testing.T) {
	// Multibyte runes: stays under the char cap but over the byte cap.
	body := strings.Repeat("汉", MaxBodyChars-100)
	if len(body) <= MaxBodyBytes {
		t.Fatal("test setup: body not over byte limit")
	}
	if err := ValidateBody(body); err == nil {
		t.Error("expected error for over-size body")
	}
}

func TestValidateBody_InvalidUTF8(t *testing.T) {
	if err := ValidateBody("hello\xff\xfe"); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestValidateBody_WrapsSentinel(t *testing.T) {
	if err := ValidateBody(""); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("expected ErrInvalidBody, got %v", err)
	}
}

func TestValidateBody_AtLimits(t *testing.T) {
	if err := ValidateBody(strings.Repeat("a", MaxBodyChars)); err != nil {
		t.Errorf("body at char limit should pass: %v", err)
	}
}
