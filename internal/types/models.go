// internal/types/models.go
package types

import (
	"time"
)

// RawPayload is a notification exactly as the platform listener observed it,
// before any normalization.
type RawPayload struct {
	PackageID    string            `json:"package_id"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Sender       string            `json:"sender"`
	ThreadKey    string            `json:"thread_key,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	ReplyCapable bool              `json:"reply_capable"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// Direction says which way a message travelled relative to the local user.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Platform is the messaging app a notification came from, resolved once at
// ingestion from the package id.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformSignal   Platform = "signal"
	PlatformSMS      Platform = "sms"
	PlatformGeneric  Platform = "generic"
)

// RawEvent is one normalized notification. Events are immutable after
// creation; they leave the system only through ledger eviction.
type RawEvent struct {
	ID           EventID           `json:"id"`
	PackageID    string            `json:"package_id"`
	Platform     Platform          `json:"platform"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Sender       string            `json:"sender"`
	Direction    Direction         `json:"direction"`
	ThreadKey    ThreadKey         `json:"thread_key"`
	Timestamp    time.Time         `json:"timestamp"`
	ReplyCapable bool              `json:"reply_capable"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// Conversation is the per-thread aggregate derived from the event stream.
type Conversation struct {
	ID                 ThreadKey `json:"id"`
	PackageID          string    `json:"package_id"`
	Platform           Platform  `json:"platform"`
	DisplayName        string    `json:"display_name"`
	LastMessageTime    time.Time `json:"last_message_time"`
	LastMessageContent string    `json:"last_message_content"`
	UnreadCount        int       `json:"unread_count"`
}

// ReplyState is the lifecycle state of a message's generated reply.
type ReplyState string

const (
	ReplyAbsent    ReplyState = "absent"
	ReplyGenerated ReplyState = "generated"
	ReplySending   ReplyState = "sending"
	ReplySent      ReplyState = "sent"
	ReplyFailed    ReplyState = "failed"
)

// Reply holds the generated text for a message together with its lifecycle
// state. Sent is terminal; Failed can be retried.
type Reply struct {
	State     ReplyState `json:"state"`
	Text      string     `json:"text,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Attempts  int        `json:"attempts"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Message is one event's conversational projection. Direction is derived
// once at admission and never changes; only the Reply field is mutable.
type Message struct {
	ID             EventID   `json:"id"`
	ConversationID ThreadKey `json:"conversation_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Direction      Direction `json:"direction"`
	ReplyCapable   bool      `json:"reply_capable"`
	Reply          Reply     `json:"reply"`
}

// Sendable reports whether a reply may ever be dispatched for this message.
func (m *Message) Sendable() bool {
	return m.Direction == Incoming && m.ReplyCapable
}

// OutcomeKind classifies a dispatch result as seen by the retry policy.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeTransient OutcomeKind = "transient"
	OutcomePermanent OutcomeKind = "permanent"
)

// Outcome is a transport's report for one dispatch attempt.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}
