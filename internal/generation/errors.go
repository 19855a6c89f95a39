package generation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable matches every error returned by a Generator when the
// service could not produce a reply.
var ErrUnavailable = errors.New("generation unavailable")

// UnavailableError describes a failed generation request.
type UnavailableError struct {
	Backend    string // Backend name, e.g. "ollama"
	Op         string // Operation: "chat", "list models", "profile"
	StatusCode int    // HTTP status when the service answered, 0 otherwise
	Err        error  // Underlying cause
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("generation unavailable: %s %s", e.Backend, e.Op))
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(" (status %d)", e.StatusCode))
	}
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnavailable) true for every UnavailableError.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func unavailable(backend, op string, status int, err error) *UnavailableError {
	return &UnavailableError{Backend: backend, Op: op, StatusCode: status, Err: err}
}

// IsUnavailable checks if the error is or wraps an UnavailableError.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
