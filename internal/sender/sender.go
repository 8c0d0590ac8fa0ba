// Package sender drives outbound replies to a terminal state: it guards the
// one-in-flight-per-message invariant, enforces the global concurrency cap
// and outbound rate limit, and retries transient transport failures with
// backoff. Each send is an independent goroutine; sending for one message
// never blocks ingestion or sending for another.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/user/notifyr/internal/reply"
	"github.com/user/notifyr/internal/store"
	"github.com/user/notifyr/internal/types"
)

// Sender executes outbound sends against registered transports.
type Sender struct {
	store      *store.Store
	tracker    *reply.Tracker
	transports *Registry
	policy     *RetryPolicy
	sem        *semaphore.Weighted
	limiter    *rate.Limiter

	mu       sync.Mutex
	inflight map[types.EventID]types.AttemptID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sender. maxConcurrent bounds simultaneous dispatches across
// all messages; ratePerSecond throttles dispatches against the platform
// reply channels (zero or negative disables throttling).
func New(s *store.Store, tracker *reply.Tracker, transports *Registry, policy *RetryPolicy, maxConcurrent int64, ratePerSecond float64) *Sender {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Sender{
		store:      s,
		tracker:    tracker,
		transports: transports,
		policy:     policy,
		sem:        semaphore.NewWeighted(maxConcurrent),
		limiter:    rate.NewLimiter(limit, 1),
		inflight:   make(map[types.EventID]types.AttemptID),
	}
}

// Start initialises the sender's context. Must be called before Send.
func (s *Sender) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Stop cancels the sender context and waits for in-flight attempts to reach
// a terminal state.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Send validates the preconditions and, if they hold, moves the reply to
// sending and spawns the attempt goroutine. It fails fast with
// ErrNotSendable or ErrAlreadyInFlight; a rejected call has no side effect.
// The attempt itself runs on the sender's own context so it reaches a
// terminal outcome regardless of the caller's lifetime.
func (s *Sender) Send(ctx context.Context, id types.EventID) error {
	msg, ok := s.store.Message(id)
	if !ok {
		return types.ErrUnknownMessage
	}
	conv, ok := s.store.Conversation(msg.ConversationID)
	if !ok {
		return types.ErrUnknownConversation
	}
	transport, err := s.transports.For(conv.Platform)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[id]; busy {
		return types.ErrAlreadyInFlight
	}
	// MarkSending enforces direction, reply capability, and lifecycle
	// legality; doing it under the in-flight lock closes the race between
	// two concurrent Send calls. The text it returns is read under the
	// store lock by the same transition that makes Edit illegal, so a
	// concurrent Edit either lands before it and is dispatched, or loses
	// the race and is rejected.
	text, err := s.tracker.MarkSending(id)
	if err != nil {
		return err
	}

	attemptID := types.NewAttemptID()
	s.inflight[id] = attemptID

	s.wg.Add(1)
	go s.run(attemptID, transport, msg, text)
	return nil
}

// InFlight reports whether a send is currently outstanding for the message.
func (s *Sender) InFlight(id types.EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[id]
	return busy
}

// run drives one send to a terminal state, retrying transient failures per
// the policy.
func (s *Sender) run(attemptID types.AttemptID, transport types.Transport, msg types.Message, text string) {
	defer s.wg.Done()
	defer s.clear(msg.ID)

	log := slog.With("message_id", string(msg.ID), "attempt_id", string(attemptID))

	for attempt := 1; ; attempt++ {
		outcome, err := s.dispatch(transport, &msg, text)
		if err != nil {
			// Context cancelled while waiting for a slot: terminal for
			// this attempt, retryable by a manual re-Send.
			s.fail(msg.ID, fmt.Sprintf("dispatch aborted: %v", err))
			return
		}
		metricAttempts.Inc()

		switch outcome.Kind {
		case types.OutcomeSuccess:
			if err := s.tracker.MarkSent(msg.ID); err != nil {
				log.Warn("mark sent failed", "error", err)
			}
			metricTerminal.WithLabelValues("sent").Inc()
			log.Info("reply sent", "attempts", attempt)
			return

		case types.OutcomePermanent:
			s.fail(msg.ID, outcome.Reason)
			log.Warn("reply failed permanently", "reason", outcome.Reason, "attempts", attempt)
			return

		default: // transient
			if !s.policy.ShouldRetry(outcome, attempt) {
				s.fail(msg.ID, outcome.Reason)
				log.Warn("reply failed after retries", "reason", outcome.Reason, "attempts", attempt)
				return
			}
			delay := s.policy.NextDelay(attempt)
			log.Debug("transient send failure, backing off", "reason", outcome.Reason, "delay", delay)
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				s.fail(msg.ID, "send interrupted by shutdown")
				return
			}
		}
	}
}

// dispatch performs one rate-limited, concurrency-capped transport call.
func (s *Sender) dispatch(transport types.Transport, msg *types.Message, text string) (types.Outcome, error) {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return types.Outcome{}, err
	}
	defer s.sem.Release(1)

	if err := s.limiter.Wait(s.ctx); err != nil {
		return types.Outcome{}, err
	}
	if err := s.tracker.RecordAttempt(msg.ID); err != nil {
		return types.Outcome{}, err
	}
	return transport.Dispatch(s.ctx, msg, text), nil
}

func (s *Sender) fail(id types.EventID, reason string) {
	if err := s.tracker.MarkFailed(id, reason); err != nil {
		slog.Warn("mark failed failed", "message_id", string(id), "error", err)
	}
	metricTerminal.WithLabelValues("failed").Inc()
}

func (s *Sender) clear(id types.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}
