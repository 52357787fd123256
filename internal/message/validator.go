package message

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxBodyBytes = 4096 // hard cap on the stored body
	MaxBodyChars = 2000 // max character count shown to the other party
)

// ErrInvalidBody is wrapped by every validation failure so callers can map
// the whole class to a single response.
var ErrInvalidBody = errors.New("invalid message body")

// ValidateBody checks that a message body meets content requirements before
// it is persisted or relayed.
func ValidateBody(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: body is empty", ErrInvalidBody)
	}
	if len(text) > MaxBodyBytes {
		return fmt.Errorf("%w: exceeds %d byte limit", ErrInvalidBody, MaxBodyBytes)
	}
	if utf8.RuneCountInString(text) > MaxBodyChars {
		return fmt.Errorf("%w: exceeds %d character limit", ErrInvalidBody, MaxBodyChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: invalid UTF-8", ErrInvalidBody)
	}
	return nil
}
