// internal/types/models_test.go
package types

import (
	"errors"
	"testing"
	"time"
)

func TestSendable(t *testing.T) {
	msg := Message{Direction: Incoming, ReplyCapable: true}
	if !msg.Sendable() {
		t.Error("incoming reply-capable message should be sendable")
	}

	msg = Message{Direction: Outgoing, ReplyCapable: true}
	if msg.Sendable() {
		t.Error("outgoing message should not be sendable")
	}

	msg = Message{Direction: Incoming, ReplyCapable: false}
	if msg.Sendable() {
		t.Error("message without reply channel should not be sendable")
	}
}

func TestNewThreadKey(t *testing.T) {
	key := NewThreadKey("telegram", "12345")
	if string(key) != "telegram:12345" {
		t.Errorf("expected 'telegram:12345', got %q", key)
	}
}

func TestInvalidTransitionError(t *testing.T) {
	var err error = &InvalidTransitionError{MessageID: "m1", From: ReplySent, To: ReplySending}

	var transition *InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatal("expected errors.As to match InvalidTransitionError")
	}
	if transition.From != ReplySent || transition.To != ReplySending {
		t.Errorf("unexpected transition fields: %+v", transition)
	}
}

func TestReplyZeroValue(t *testing.T) {
	msg := Message{
		ID:        "m1",
		Timestamp: time.Now(),
		Reply:     Reply{State: ReplyAbsent},
	}
	if msg.Reply.State != ReplyAbsent {
		t.Errorf("expected absent, got %s", msg.Reply.State)
	}
}
