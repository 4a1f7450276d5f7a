// Package server defines the chat message relayed between clients and small
// helpers shared by the hub and the push transports.
package server

import (
	"strings"
	"unicode/utf8"
)

// Length limits enforced when a message is published.
const (
	MaxRoomLength     = 30
	MaxUsernameLength = 20
)

// Message is the unit published to and delivered from the relay. It is a
// plain value; every subscriber receives its own copy.
type Message struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Validate checks the field length limits. Lengths are counted in
// characters, not bytes.
func (m Message) Validate() error {
	var errs ValidationErrors

	if n := utf8.RuneCountInString(m.Room); n > MaxRoomLength {
		errs = append(errs, FieldError{Field: "room", Message: tooLong(MaxRoomLength)})
	}
	if n := utf8.RuneCountInString(m.Username); n > MaxUsernameLength {
		errs = append(errs, FieldError{Field: "username", Message: tooLong(MaxUsernameLength)})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
