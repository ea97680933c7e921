// Package apperr defines the error taxonomy shared by the service layer and
// the HTTP handlers. Handlers map these to status codes; nothing else in the
// tree inspects error strings.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound covers unknown reservation and slot ids, including ids
	// already removed by another client.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a transition is requested from a
	// state that does not admit it.
	ErrInvalidState = errors.New("invalid reservation state")

	// ErrSlotUnavailable is the conflict a losing assign call receives. It
	// is distinct from ErrInvalidState so clients can prompt for another
	// slot instead of showing a generic failure.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrCapacity rejects creation when every slot is already spoken for.
	ErrCapacity = errors.New("no reservation capacity")

	// ErrInvalidCredentials is returned by login on a bad id/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid is returned for missing, malformed or expired bearer
	// tokens on authenticated calls.
	ErrTokenInvalid = errors.New("token invalid or expired")
)

// FieldError is a single violated constraint on a named input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries every violated constraint of a request, so a form
// can surface all of them at once.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Reason)
	}
	return strings.Join(parts, "; ")
}

// Add appends a violation and returns the receiver for chaining.
func (e *ValidationError) Add(field, reason string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
	return e
}

// Empty reports whether no violations were recorded.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// IsValidation reports whether err is a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
