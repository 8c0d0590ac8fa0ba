// Package reply tracks the per-message lifecycle of generated replies:
// absent -> generated -> sending -> sent, with failed as the retryable
// branch out of sending. All state lives on the store's message records;
// the tracker owns the legality of transitions, nothing else.
package reply

import (
	"github.com/user/notifyr/internal/store"
	"github.com/user/notifyr/internal/types"
)

// Tracker mutates reply state through the store so every change happens
// under the store's lock and reaches its watchers.
type Tracker struct {
	store *store.Store
}

// NewTracker creates a Tracker over the given store.
func NewTracker(s *store.Store) *Tracker {
	return &Tracker{store: s}
}

// RecordGenerated stores freshly generated text. Legal from absent or
// failed; regenerating over failed resets the attempt counter and error.
func (t *Tracker) RecordGenerated(id types.EventID, text string) error {
	return t.store.UpdateReply(id, func(msg *types.Message) error {
		switch msg.Reply.State {
		case types.ReplyAbsent, types.ReplyFailed:
			msg.Reply = types.Reply{State: types.ReplyGenerated, Text: text}
			return nil
		default:
			return &types.InvalidTransitionError{MessageID: id, From: msg.Reply.State, To: types.ReplyGenerated}
		}
	})
}

// Edit replaces the stored text without changing state. Legal only while
// the reply is still in generated; nothing is in flight yet, so there is
// nothing to cancel.
func (t *Tracker) Edit(id types.EventID, text string) error {
	return t.store.UpdateReply(id, func(msg *types.Message) error {
		if msg.Reply.State != types.ReplyGenerated {
			return &types.InvalidTransitionError{MessageID: id, From: msg.Reply.State, To: types.ReplyGenerated}
		}
		msg.Reply.Text = text
		return nil
	})
}

// MarkSending moves a reply into sending and returns the text that was
// locked in by the transition. Legal from generated, and from failed for a
// manual retry (which resets the attempt counter). The message itself must
// be incoming and reply-capable. Once a reply is in sending, Edit is no
// longer legal, so the returned text is exactly what will be dispatched.
func (t *Tracker) MarkSending(id types.EventID) (string, error) {
	var text string
	err := t.store.UpdateReply(id, func(msg *types.Message) error {
		if !msg.Sendable() {
			return types.ErrNotSendable
		}
		switch msg.Reply.State {
		case types.ReplyGenerated:
		case types.ReplyFailed:
			msg.Reply.Attempts = 0
			msg.Reply.LastError = ""
		default:
			return &types.InvalidTransitionError{MessageID: id, From: msg.Reply.State, To: types.ReplySending}
		}
		msg.Reply.State = types.ReplySending
		text = msg.Reply.Text
		return nil
	})
	return text, err
}

// RecordAttempt bumps the attempt counter for an in-flight send.
func (t *Tracker) RecordAttempt(id types.EventID) error {
	return t.store.UpdateReply(id, func(msg *types.Message) error {
		if msg.Reply.State != types.ReplySending {
			return &types.InvalidTransitionError{MessageID: id, From: msg.Reply.State, To: types.ReplySending}
		}
		msg.Reply.Attempts++
		return nil
	})
}

// MarkSent completes a send. Legal from sending; sent is terminal and the
// call is idempotent, so a second MarkSent is a no-op rather than an error.
func (t *Tracker) MarkSent(id types.EventID) error {
	return t.store.UpdateReply(id, func(msg *types.Message) error {
		switch msg.Reply.State {
		case types.ReplySent:
			return nil
		case types.ReplySending:
			msg.Reply.State = types.ReplySent
			msg.Reply.LastError = ""
			return nil
		default:
			return &types.InvalidTransitionError{MessageID: id, From: msg.Reply.State, To: types.ReplySent}
		}
	})
}

// MarkFailed records a terminal failure, retaining the reason for display.
// A caller may re-Send from failed; that path runs back through MarkSending.
func (t *Tracker) MarkFailed(id types.EventID, reason string) error {
	return t.store.UpdateReply(id, func(msg *types.Message) error {
		if msg.Reply.State != types.ReplySending {
			return &types.InvalidTransitionError{MessageID: id, From: msg.Reply.State, To: types.ReplyFailed}
		}
		msg.Reply.State = types.ReplyFailed
		msg.Reply.LastError = reason
		return nil
	})
}

// State returns the current reply state for a message.
func (t *Tracker) State(id types.EventID) (types.ReplyState, error) {
	msg, ok := t.store.Message(id)
	if !ok {
		return "", types.ErrUnknownMessage
	}
	return msg.Reply.State, nil
}
