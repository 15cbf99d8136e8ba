// Package chaterr holds the error taxonomy shared by the chat core.
package chaterr

import (
	"errors"
	"fmt"
	"time"
)

// TransportError reports that a write or read against the real-time store
// could not complete. It is transient and never retried by the core.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError for op. A nil err stays nil.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// Reason classifies a ValidationError.
type Reason string

const (
	ReasonEmptyText Reason = "empty_text"
	ReasonCooldown  Reason = "cooldown"
)

// ValidationError rejects a send before any store interaction.
type ValidationError struct {
	Reason Reason
	// Remaining is set for ReasonCooldown.
	Remaining time.Duration
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonCooldown {
		return fmt.Sprintf("cooldown active: wait %s", e.Remaining.Round(time.Millisecond))
	}
	return "message text is empty"
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
