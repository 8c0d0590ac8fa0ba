// internal/store/watch.go
package store

import (
	"github.com/user/notifyr/internal/types"
)

// ChangeKind tags what a ChangeNote is about.
type ChangeKind string

const (
	ChangeMessageAdded        ChangeKind = "message_added"
	ChangeReplyUpdated        ChangeKind = "reply_updated"
	ChangeConversationUpdated ChangeKind = "conversation_updated"
	ChangeConversationDeleted ChangeKind = "conversation_deleted"
)

// ChangeNote tells a subscriber that state it may be rendering has changed.
// It carries identifiers only; subscribers re-read through the snapshot
// accessors.
type ChangeNote struct {
	Kind      ChangeKind      `json:"kind"`
	Thread    types.ThreadKey `json:"thread"`
	MessageID types.EventID   `json:"message_id,omitempty"`
}

// watchBuffer is the per-subscriber channel depth. A subscriber that falls
// further behind than this loses notes rather than stalling ingestion.
const watchBuffer = 64

// Watch registers a subscriber and returns its id and note channel.
func (s *Store) Watch() (types.SubscriptionID, <-chan ChangeNote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := types.NewSubscriptionID()
	ch := make(chan ChangeNote, watchBuffer)
	s.watchers[id] = ch
	return id, ch
}

// Unwatch removes a subscriber and closes its channel.
func (s *Store) Unwatch(id types.SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.watchers[id]; ok {
		delete(s.watchers, id)
		close(ch)
	}
}

// notifyLocked fans a note out to all subscribers without ever blocking the
// critical section. Caller must hold the write lock.
func (s *Store) notifyLocked(note ChangeNote) {
	for _, ch := range s.watchers {
		select {
		case ch <- note:
		default:
		}
	}
}
