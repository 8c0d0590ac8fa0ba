// internal/types/interfaces.go
package types

import (
	"context"
)

// Transport dispatches an outbound reply through a platform's reply channel.
// It reports exactly one Outcome per attempt; the core never inspects
// anything beyond the outcome kind and reason.
type Transport interface {
	Dispatch(ctx context.Context, msg *Message, text string) Outcome
}

// Generator produces reply text for a target message given the conversation
// it belongs to and the message history leading up to it. How context is
// windowed or a persona injected is the implementation's business.
type Generator interface {
	Generate(ctx context.Context, conv *Conversation, history []*Message, target *Message) (string, error)
}
