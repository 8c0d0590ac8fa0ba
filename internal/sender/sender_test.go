package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/notifyr/internal/reply"
	"github.com/user/notifyr/internal/store"
	"github.com/user/notifyr/internal/types"
)

// fakeTransport replays a scripted sequence of outcomes, then keeps
// returning the last one. It can optionally block until released so tests
// can hold a send in flight.
type fakeTransport struct {
	mu       sync.Mutex
	script   []types.Outcome
	calls    int32
	blocked  chan struct{}
	released chan struct{}
}

func (f *fakeTransport) Dispatch(ctx context.Context, msg *types.Message, text string) types.Outcome {
	atomic.AddInt32(&f.calls, 1)
	if f.blocked != nil {
		f.blocked <- struct{}{}
		<-f.released
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return types.Outcome{Kind: types.OutcomeSuccess}
	}
	out := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return out
}

func (f *fakeTransport) dispatches() int {
	return int(atomic.LoadInt32(&f.calls))
}

func fastPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Millisecond,
	}
}

// rig wires a store with one sendable incoming message, a tracker, and a
// sender over the given transport.
func rig(t *testing.T, transport types.Transport, policy *RetryPolicy) (*Sender, *reply.Tracker, types.EventID, func()) {
	t.Helper()
	s := store.New(10, nil)
	res := s.Admit(&types.RawEvent{
		ID:           "m1",
		PackageID:    "com.whatsapp",
		Platform:     types.PlatformWhatsApp,
		Title:        "Alice",
		Body:         "hi",
		Sender:       "Alice",
		Direction:    types.Incoming,
		ThreadKey:    "t1",
		Timestamp:    time.Now(),
		ReplyCapable: true,
	})

	tracker := reply.NewTracker(s)
	registry := NewRegistry()
	registry.Register(types.PlatformWhatsApp, transport)

	snd := New(s, tracker, registry, policy, 4, 0)
	snd.Start(context.Background())
	return snd, tracker, res.Message.ID, snd.Stop
}

func waitForState(t *testing.T, tracker *reply.Tracker, id types.EventID, want types.ReplyState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got, _ := tracker.State(id); got == want {
			return
		}
		select {
		case <-deadline:
			got, _ := tracker.State(id)
			t.Fatalf("timed out waiting for state %s, still %s", want, got)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSendTransientFailuresThenSuccess(t *testing.T) {
	transport := &fakeTransport{script: []types.Outcome{
		{Kind: types.OutcomeTransient, Reason: "timeout"},
		{Kind: types.OutcomeTransient, Reason: "busy"},
		{Kind: types.OutcomeSuccess},
	}}
	snd, tracker, id, stop := rig(t, transport, fastPolicy(3))
	defer stop()

	tracker.RecordGenerated(id, "draft")
	if err := snd.Send(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	waitForState(t, tracker, id, types.ReplySent)
	if got := transport.dispatches(); got != 3 {
		t.Errorf("expected exactly 3 dispatch attempts, got %d", got)
	}
}

func TestSendPermanentFailureNoRetry(t *testing.T) {
	transport := &fakeTransport{script: []types.Outcome{
		{Kind: types.OutcomePermanent, Reason: "reply channel revoked"},
	}}
	snd, tracker, id, stop := rig(t, transport, fastPolicy(3))
	defer stop()

	tracker.RecordGenerated(id, "draft")
	if err := snd.Send(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	waitForState(t, tracker, id, types.ReplyFailed)
	if got := transport.dispatches(); got != 1 {
		t.Errorf("permanent failure should not retry, got %d attempts", got)
	}
}

func TestSendExhaustsRetriesThenManualResend(t *testing.T) {
	transport := &fakeTransport{script: []types.Outcome{
		{Kind: types.OutcomeTransient, Reason: "always busy"},
	}}
	snd, tracker, id, stop := rig(t, transport, fastPolicy(3))
	defer stop()

	tracker.RecordGenerated(id, "draft")
	if err := snd.Send(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	waitForState(t, tracker, id, types.ReplyFailed)
	if got := transport.dispatches(); got != 3 {
		t.Errorf("expected MaxAttempts=3 dispatches, got %d", got)
	}

	// Manual re-send from failed resets the counter and tries again.
	transport.mu.Lock()
	transport.script = []types.Outcome{{Kind: types.OutcomeSuccess}}
	transport.mu.Unlock()

	if err := snd.Send(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	waitForState(t, tracker, id, types.ReplySent)
	if got := transport.dispatches(); got != 4 {
		t.Errorf("expected exactly one more dispatch, got %d total", got)
	}
}

func TestSecondSendRejectedWhileInFlight(t *testing.T) {
	transport := &fakeTransport{
		blocked:  make(chan struct{}, 1),
		released: make(chan struct{}),
	}
	snd, tracker, id, stop := rig(t, transport, fastPolicy(3))
	defer stop()

	tracker.RecordGenerated(id, "draft")
	if err := snd.Send(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	<-transport.blocked // first dispatch is now in flight

	if err := snd.Send(context.Background(), id); !errors.Is(err, types.ErrAlreadyInFlight) {
		t.Errorf("expected ErrAlreadyInFlight, got %v", err)
	}

	close(transport.released)
	waitForState(t, tracker, id, types.ReplySent)
	if got := transport.dispatches(); got != 1 {
		t.Errorf("expected a single dispatch, got %d", got)
	}
}

func TestSendPreconditions(t *testing.T) {
	transport := &fakeTransport{}
	snd, tracker, id, stop := rig(t, transport, fastPolicy(3))
	defer stop()

	// No generated text yet.
	if err := snd.Send(context.Background(), id); err == nil {
		t.Error("expected error sending with no generated reply")
	}
	if got := transport.dispatches(); got != 0 {
		t.Errorf("rejected send must not dispatch, got %d", got)
	}

	// Unknown message.
	if err := snd.Send(context.Background(), "missing"); !errors.Is(err, types.ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}

	_ = tracker
}

func TestSendNotSendableOutgoing(t *testing.T) {
	s := store.New(10, nil)
	res := s.Admit(&types.RawEvent{
		ID:        "out1",
		PackageID: "com.whatsapp",
		Platform:  types.PlatformWhatsApp,
		Title:     "You",
		Body:      "mine",
		Sender:    "You",
		Direction: types.Outgoing,
		ThreadKey: "t1",
		Timestamp: time.Now(),
	})
	tracker := reply.NewTracker(s)
	registry := NewRegistry()
	registry.Register(types.PlatformWhatsApp, &fakeTransport{})

	snd := New(s, tracker, registry, fastPolicy(3), 4, 0)
	snd.Start(context.Background())
	defer snd.Stop()

	if err := snd.Send(context.Background(), res.Message.ID); !errors.Is(err, types.ErrNotSendable) {
		t.Errorf("expected ErrNotSendable, got %v", err)
	}
}

func TestSendNoTransport(t *testing.T) {
	s := store.New(10, nil)
	res := s.Admit(&types.RawEvent{
		ID:           "m1",
		PackageID:    "com.example.app",
		Platform:     types.PlatformGeneric,
		Title:        "Alice",
		Body:         "hi",
		Sender:       "Alice",
		Direction:    types.Incoming,
		ThreadKey:    "t1",
		Timestamp:    time.Now(),
		ReplyCapable: true,
	})
	tracker := reply.NewTracker(s)
	tracker.RecordGenerated(res.Message.ID, "draft")

	snd := New(s, tracker, NewRegistry(), fastPolicy(3), 4, 0)
	snd.Start(context.Background())
	defer snd.Stop()

	if err := snd.Send(context.Background(), res.Message.ID); !errors.Is(err, types.ErrNoTransport) {
		t.Errorf("expected ErrNoTransport, got %v", err)
	}
}

func TestIndependentSendsDoNotBlockEachOther(t *testing.T) {
	// One message's transport hangs; the other's send must still finish.
	blocked := &fakeTransport{
		blocked:  make(chan struct{}, 1),
		released: make(chan struct{}),
	}
	fast := &fakeTransport{}

	s := store.New(10, nil)
	slow := s.Admit(&types.RawEvent{
		ID: "slow", PackageID: "com.whatsapp", Platform: types.PlatformWhatsApp,
		Title: "Alice", Body: "a", Sender: "Alice", Direction: types.Incoming,
		ThreadKey: "t1", Timestamp: time.Now(), ReplyCapable: true,
	})
	quick := s.Admit(&types.RawEvent{
		ID: "quick", PackageID: "org.telegram.messenger", Platform: types.PlatformTelegram,
		Title: "Bob", Body: "b", Sender: "Bob", Direction: types.Incoming,
		ThreadKey: "telegram:2", Timestamp: time.Now(), ReplyCapable: true,
	})

	tracker := reply.NewTracker(s)
	registry := NewRegistry()
	registry.Register(types.PlatformWhatsApp, blocked)
	registry.Register(types.PlatformTelegram, fast)

	snd := New(s, tracker, registry, fastPolicy(3), 4, 0)
	snd.Start(context.Background())

	tracker.RecordGenerated(slow.Message.ID, "x")
	tracker.RecordGenerated(quick.Message.ID, "y")

	if err := snd.Send(context.Background(), slow.Message.ID); err != nil {
		t.Fatal(err)
	}
	<-blocked.blocked

	if err := snd.Send(context.Background(), quick.Message.ID); err != nil {
		t.Fatal(err)
	}
	waitForState(t, tracker, quick.Message.ID, types.ReplySent)

	close(blocked.released)
	waitForState(t, tracker, slow.Message.ID, types.ReplySent)
	snd.Stop()
}

// recordingTransport remembers the text handed to each dispatch.
type recordingTransport struct {
	mu   sync.Mutex
	sent map[types.EventID]string
}

func (r *recordingTransport) Dispatch(ctx context.Context, msg *types.Message, text string) types.Outcome {
	r.mu.Lock()
	r.sent[msg.ID] = text
	r.mu.Unlock()
	return types.Outcome{Kind: types.OutcomeSuccess}
}

func TestDispatchedTextMatchesTrackerUnderConcurrentEdit(t *testing.T) {
	// An Edit racing a Send must either land before the sending transition
	// and be dispatched, or lose and be rejected. Whatever text the
	// transport received must be exactly what the reply record holds once
	// the send is terminal.
	transport := &recordingTransport{sent: make(map[types.EventID]string)}

	s := store.New(100, nil)
	tracker := reply.NewTracker(s)
	registry := NewRegistry()
	registry.Register(types.PlatformWhatsApp, transport)

	snd := New(s, tracker, registry, fastPolicy(3), 8, 0)
	snd.Start(context.Background())
	defer snd.Stop()

	for i := 0; i < 50; i++ {
		res := s.Admit(&types.RawEvent{
			ID:           types.EventID(fmt.Sprintf("m%d", i)),
			PackageID:    "com.whatsapp",
			Platform:     types.PlatformWhatsApp,
			Title:        "Alice",
			Body:         "hi",
			Sender:       "Alice",
			Direction:    types.Incoming,
			ThreadKey:    "t1",
			Timestamp:    time.Now(),
			ReplyCapable: true,
		})
		id := res.Message.ID
		tracker.RecordGenerated(id, "draft 0")

		done := make(chan struct{})
		go func() {
			defer close(done)
			for n := 1; ; n++ {
				if err := tracker.Edit(id, fmt.Sprintf("draft %d", n)); err != nil {
					return // reply has left generated, no further edits
				}
			}
		}()

		if err := snd.Send(context.Background(), id); err != nil {
			t.Fatal(err)
		}
		waitForState(t, tracker, id, types.ReplySent)
		<-done

		msg, _ := s.Message(id)
		transport.mu.Lock()
		dispatched := transport.sent[id]
		transport.mu.Unlock()
		if dispatched != msg.Reply.Text {
			t.Fatalf("iteration %d: dispatched %q but reply record holds %q", i, dispatched, msg.Reply.Text)
		}
	}
}

func TestAttemptCounterRecorded(t *testing.T) {
	transport := &fakeTransport{script: []types.Outcome{
		{Kind: types.OutcomeTransient, Reason: "busy"},
		{Kind: types.OutcomeSuccess},
	}}
	snd, tracker, id, stop := rig(t, transport, fastPolicy(3))
	defer stop()

	tracker.RecordGenerated(id, "draft")
	snd.Send(context.Background(), id)
	waitForState(t, tracker, id, types.ReplySent)

	if snd.InFlight(id) {
		t.Error("in-flight entry should be cleared after terminal state")
	}
}
