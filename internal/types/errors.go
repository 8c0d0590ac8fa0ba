// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEvent marks a payload with nothing to display. The event
	// is dropped and logged; no state changes.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownMessage / ErrUnknownConversation signal lookups for ids the
	// store does not hold (possibly already evicted).
	ErrUnknownMessage      = errors.New("unknown message")
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrNotSendable is returned when a send is requested for a message
	// that is outgoing or lacks a reply channel.
	ErrNotSendable = errors.New("message not sendable")

	// ErrAlreadyInFlight is returned when a second send is requested while
	// one attempt is still outstanding for the same message.
	ErrAlreadyInFlight = errors.New("send already in flight")

	// ErrNoTransport is returned when no transport is registered for a
	// conversation's platform.
	ErrNoTransport = errors.New("no transport for platform")
)

// InvalidTransitionError reports an illegal reply lifecycle move. It is
// surfaced to callers as a recoverable condition, never a crash.
type InvalidTransitionError struct {
	MessageID EventID
	From      ReplyState
	To        ReplyState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid reply transition %s -> %s for message %s", e.From, e.To, e.MessageID)
}
