// Package gateway wires the ingestion pipeline together: normalize, admit,
// aggregate, then notify. It also fronts reply generation and sending so
// the surrounding surfaces (CLI, HTTP, platform adapters) only ever talk to
// one object.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/notifyr/internal/normalize"
	"github.com/user/notifyr/internal/reply"
	"github.com/user/notifyr/internal/sender"
	"github.com/user/notifyr/internal/store"
	"github.com/user/notifyr/internal/types"
)

// IngestStatus reports what happened to one payload.
type IngestStatus string

const (
	IngestAdmitted  IngestStatus = "admitted"
	IngestDuplicate IngestStatus = "duplicate"
	IngestRejected  IngestStatus = "rejected"
)

// IngestResult is the per-payload outcome handed back to the notification
// source.
type IngestResult struct {
	Status       IngestStatus
	EventID      types.EventID
	Conversation types.Conversation
	Message      types.Message
}

// Gateway is the composition of the core pipeline. It owns no locks of its
// own; atomicity per event comes from the store's critical section.
type Gateway struct {
	normalizer *normalize.Normalizer
	store      *store.Store
	tracker    *reply.Tracker
	sender     *sender.Sender
	generator  types.Generator
}

// New creates a Gateway over the given components. generator may be nil when
// reply generation is not configured; GenerateReply then fails cleanly.
func New(n *normalize.Normalizer, s *store.Store, t *reply.Tracker, snd *sender.Sender, g types.Generator) *Gateway {
	return &Gateway{
		normalizer: n,
		store:      s,
		tracker:    t,
		sender:     snd,
		generator:  g,
	}
}

// Ingest runs one payload through normalize -> admit -> aggregate. Malformed
// payloads are dropped and logged with no state change; duplicates are a
// signalled no-op. Neither is fatal to the caller.
func (g *Gateway) Ingest(payload *types.RawPayload) (IngestResult, error) {
	event, err := g.normalizer.Normalize(payload)
	if err != nil {
		if errors.Is(err, types.ErrMalformedEvent) {
			slog.Warn("dropping malformed event", "package", payload.PackageID, "error", err)
			return IngestResult{Status: IngestRejected}, err
		}
		return IngestResult{Status: IngestRejected}, fmt.Errorf("normalize: %w", err)
	}

	res := g.store.Admit(event)
	if res.Status == store.Duplicate {
		slog.Debug("duplicate event", "event_id", string(event.ID))
		return IngestResult{Status: IngestDuplicate, EventID: event.ID}, nil
	}

	slog.Debug("event admitted",
		"event_id", string(event.ID),
		"thread", string(event.ThreadKey),
		"direction", string(event.Direction),
	)
	return IngestResult{
		Status:       IngestAdmitted,
		EventID:      event.ID,
		Conversation: res.Conversation,
		Message:      res.Message,
	}, nil
}

// GenerateReply asks the generator for text for the target message and
// records it on the reply lifecycle. Legal whenever RecordGenerated is
// (absent or failed), so regeneration after a failure just works.
func (g *Gateway) GenerateReply(ctx context.Context, id types.EventID) (string, error) {
	if g.generator == nil {
		return "", errors.New("no reply generator configured")
	}
	msg, ok := g.store.Message(id)
	if !ok {
		return "", types.ErrUnknownMessage
	}
	conv, ok := g.store.Conversation(msg.ConversationID)
	if !ok {
		return "", types.ErrUnknownConversation
	}
	history, err := g.store.Messages(msg.ConversationID)
	if err != nil {
		return "", err
	}
	historyPtrs := make([]*types.Message, len(history))
	for i := range history {
		historyPtrs[i] = &history[i]
	}

	text, err := g.generator.Generate(ctx, &conv, historyPtrs, &msg)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if err := g.tracker.RecordGenerated(id, text); err != nil {
		return "", err
	}
	return text, nil
}

// EditReply replaces generated text before sending.
func (g *Gateway) EditReply(id types.EventID, text string) error {
	return g.tracker.Edit(id, text)
}

// Send hands the message's generated reply to the retrying sender.
func (g *Gateway) Send(ctx context.Context, id types.EventID) error {
	return g.sender.Send(ctx, id)
}

// MarkRead resets a conversation's unread counter on behalf of the caller.
func (g *Gateway) MarkRead(key types.ThreadKey) error {
	return g.store.MarkRead(key)
}

// DeleteConversation removes a conversation on explicit caller request.
func (g *Gateway) DeleteConversation(key types.ThreadKey) error {
	return g.store.DeleteConversation(key)
}

// Store exposes the snapshot accessors for read-only consumers.
func (g *Gateway) Store() *store.Store {
	return g.store
}
