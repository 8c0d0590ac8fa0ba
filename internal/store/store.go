// internal/store/store.go
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/user/notifyr/internal/types"
)

// DefaultCapacity bounds the ledger when the caller does not choose one.
const DefaultCapacity = 500

// placeholderName is used when a conversation is created by a self-originated
// event and no other-party identity is known yet. The first incoming event
// corrects it.
const placeholderName = "Unknown"

// AdmitStatus reports what Admit did with an event.
type AdmitStatus string

const (
	Admitted  AdmitStatus = "admitted"
	Duplicate AdmitStatus = "duplicate"
)

// AdmitResult is the outcome of one admission: the status plus snapshots of
// the conversation and message as they stood right after the event applied.
type AdmitResult struct {
	Status       AdmitStatus
	Conversation types.Conversation
	Message      types.Message
	EvictedID    types.EventID
}

// Store is the volatile, bounded event ledger plus the conversation
// aggregates derived from it. All mutation happens inside one short critical
// section per event, so concurrent readers never observe a partially applied
// event. The store holds no hidden global state: capacity and clock are
// injected by the composition root.
type Store struct {
	mu sync.RWMutex

	capacity int
	now      func() time.Time

	order         []types.EventID
	events        map[types.EventID]*types.RawEvent
	messages      map[types.EventID]*types.Message
	byThread      map[types.ThreadKey][]types.EventID
	conversations map[types.ThreadKey]*types.Conversation

	watchers map[types.SubscriptionID]chan ChangeNote
}

// New creates a Store with the given ledger capacity and clock. A zero or
// negative capacity falls back to DefaultCapacity; a nil clock uses time.Now.
func New(capacity int, now func() time.Time) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		capacity:      capacity,
		now:           now,
		events:        make(map[types.EventID]*types.RawEvent),
		messages:      make(map[types.EventID]*types.Message),
		byThread:      make(map[types.ThreadKey][]types.EventID),
		conversations: make(map[types.ThreadKey]*types.Conversation),
		watchers:      make(map[types.SubscriptionID]chan ChangeNote),
	}
}

// Admit runs the dedup check and, for new events, applies the event to its
// conversation aggregate atomically. At capacity the oldest event (by
// admission order) is evicted first; eviction is a memory bound, never a
// correctness signal, so the conversation aggregate survives it. Admit never
// blocks the producer: it admits or evicts, it does not refuse.
func (s *Store) Admit(event *types.RawEvent) AdmitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		metricDuplicates.Inc()
		return AdmitResult{Status: Duplicate}
	}

	var evicted types.EventID
	if len(s.order) >= s.capacity {
		evicted = s.evictOldestLocked()
	}

	stored := cloneEvent(event)
	s.events[event.ID] = stored
	s.order = append(s.order, event.ID)

	conv := s.applyLocked(stored)
	msg := s.projectLocked(stored)
	metricAdmitted.Inc()

	s.notifyLocked(ChangeNote{Kind: ChangeMessageAdded, Thread: conv.ID, MessageID: msg.ID})

	return AdmitResult{
		Status:       Admitted,
		Conversation: *conv,
		Message:      *msg,
		EvictedID:    evicted,
	}
}

// applyLocked updates (or creates) the conversation aggregate for the event.
// Self-originated events never touch displayName or unreadCount but still
// refresh the recency fields.
func (s *Store) applyLocked(event *types.RawEvent) *types.Conversation {
	conv, ok := s.conversations[event.ThreadKey]
	if !ok {
		name := placeholderName
		if event.Direction == types.Incoming {
			name = event.Sender
		}
		conv = &types.Conversation{
			ID:          event.ThreadKey,
			PackageID:   event.PackageID,
			Platform:    event.Platform,
			DisplayName: name,
		}
		s.conversations[event.ThreadKey] = conv
	}

	if event.Direction == types.Incoming {
		conv.DisplayName = event.Sender
		conv.UnreadCount++
	}

	// Recency never regresses on late out-of-order arrivals; on equal
	// timestamps the later admission wins.
	if !event.Timestamp.Before(conv.LastMessageTime) {
		conv.LastMessageTime = event.Timestamp
		conv.LastMessageContent = event.Body
	}
	return conv
}

// projectLocked creates the Message projection for an admitted event.
func (s *Store) projectLocked(event *types.RawEvent) *types.Message {
	msg := &types.Message{
		ID:             event.ID,
		ConversationID: event.ThreadKey,
		SenderName:     event.Sender,
		Content:        event.Body,
		Timestamp:      event.Timestamp,
		Direction:      event.Direction,
		ReplyCapable:   event.ReplyCapable,
		Reply:          types.Reply{State: types.ReplyAbsent},
	}
	s.messages[event.ID] = msg
	s.byThread[event.ThreadKey] = append(s.byThread[event.ThreadKey], event.ID)
	return msg
}

// evictOldestLocked removes the oldest admitted event and cascades to its
// message. The conversation aggregate is retained even when this was its
// sole message, and unreadCount is deliberately left untouched.
func (s *Store) evictOldestLocked() types.EventID {
	id := s.order[0]
	s.order = s.order[1:]

	if event, ok := s.events[id]; ok {
		delete(s.events, id)
		s.removeFromThreadLocked(event.ThreadKey, id)
	}
	delete(s.messages, id)
	metricEvictions.Inc()
	return id
}

func (s *Store) removeFromThreadLocked(key types.ThreadKey, id types.EventID) {
	ids := s.byThread[key]
	for i, candidate := range ids {
		if candidate == id {
			s.byThread[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byThread[key]) == 0 {
		delete(s.byThread, key)
	}
}

// UpdateReply applies mutate to the message's live record under the store
// lock and notifies watchers when the mutation succeeds. The reply trackers
// and the sender funnel every reply-state change through here.
func (s *Store) UpdateReply(id types.EventID, mutate func(*types.Message) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return types.ErrUnknownMessage
	}
	if err := mutate(msg); err != nil {
		return err
	}
	msg.Reply.UpdatedAt = s.now()
	s.notifyLocked(ChangeNote{Kind: ChangeReplyUpdated, Thread: msg.ConversationID, MessageID: id})
	return nil
}

// MarkRead resets the unread counter. The core never resets it on its own;
// this is the explicit caller-issued path.
func (s *Store) MarkRead(key types.ThreadKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		return types.ErrUnknownConversation
	}
	conv.UnreadCount = 0
	s.notifyLocked(ChangeNote{Kind: ChangeConversationUpdated, Thread: key})
	return nil
}

// DeleteConversation removes a conversation and everything projected under
// it, including the backing ledger entries. Only explicit caller deletes go
// through here; the core itself never deletes aggregates.
func (s *Store) DeleteConversation(key types.ThreadKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[key]; !ok {
		return types.ErrUnknownConversation
	}
	delete(s.conversations, key)

	doomed := make(map[types.EventID]bool, len(s.byThread[key]))
	for _, id := range s.byThread[key] {
		doomed[id] = true
		delete(s.events, id)
		delete(s.messages, id)
	}
	delete(s.byThread, key)

	kept := s.order[:0]
	for _, id := range s.order {
		if !doomed[id] {
			kept = append(kept, id)
		}
	}
	s.order = kept

	s.notifyLocked(ChangeNote{Kind: ChangeConversationDeleted, Thread: key})
	return nil
}

// Message returns a snapshot of one message.
func (s *Store) Message(id types.EventID) (types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return types.Message{}, false
	}
	return *msg, true
}

// Conversation returns a snapshot of one aggregate.
func (s *Store) Conversation(key types.ThreadKey) (types.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key]
	if !ok {
		return types.Conversation{}, false
	}
	return *conv, true
}

// Conversations returns snapshots of all aggregates, most recent first.
func (s *Store) Conversations() []types.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

// Messages returns snapshots of a conversation's messages ordered by
// timestamp, ties broken by admission order.
func (s *Store) Messages(key types.ThreadKey) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[key]; !ok {
		return nil, types.ErrUnknownConversation
	}

	ids := s.byThread[key]
	out := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			out = append(out, *msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Events returns snapshots of all live ledger events in admission order.
func (s *Store) Events() []types.RawEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.RawEvent, 0, len(s.order))
	for _, id := range s.order {
		if event, ok := s.events[id]; ok {
			out = append(out, *cloneEvent(event))
		}
	}
	return out
}

// Len returns the number of live ledger events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func cloneEvent(event *types.RawEvent) *types.RawEvent {
	clone := *event
	if event.Extras != nil {
		clone.Extras = make(map[string]string, len(event.Extras))
		for k, v := range event.Extras {
			clone.Extras[k] = v
		}
	}
	return &clone
}
