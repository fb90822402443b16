// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/memq/queue/types"
)

var _ types.MessageQueue = (*Queue)(nil)

// lock is an entry in the lock table.
type lock struct {
	messageID string
	expiresAt time.Time
}

// Queue is an in-process message queue with visibility-timeout semantics.
//
// Pending messages are delivered in FIFO order. A received message is moved
// to the lock table until the consumer completes, abandons or dead-letters it.
// Expired locks are only consulted by Abandon; nothing reclaims them in the
// background, so a consumer that never resolves a message keeps it invisible.
type Queue struct {
	name         string
	config       types.QueueConfig
	logger       *slog.Logger
	counters     types.Counters
	deadLetters  types.DeadLetterHandler
	now          func() time.Time
	capabilities types.Capabilities

	mu        sync.Mutex
	messages  []*types.Envelope
	locks     map[types.LockToken]lock
	lockSeq   types.LockToken
	waiters   []chan struct{}
	opened    bool
	listening bool
	listenSeq uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithCounters sets the counters receiving sent/received/dead message increments.
func WithCounters(counters types.Counters) Option {
	return func(q *Queue) {
		if counters != nil {
			q.counters = counters
		}
	}
}

// WithDeadLetterHandler attaches a handler notified of dead-lettered messages.
func WithDeadLetterHandler(h types.DeadLetterHandler) Option {
	return func(q *Queue) {
		q.deadLetters = h
	}
}

// WithClock overrides the time source used for sent times and lock expiry.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New creates a new in-memory queue. Zero timeouts in cfg fall back to defaults.
func New(cfg types.QueueConfig, opts ...Option) *Queue {
	if cfg.Kind == "" {
		cfg.Kind = types.KindMemory
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = types.DefaultLockTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = types.DefaultWaitTimeout
	}

	q := &Queue{
		name:     cfg.Name,
		config:   cfg,
		logger:   slog.Default(),
		counters: types.NoopCounters{},
		now:      time.Now,
		locks:    make(map[types.LockToken]lock),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.capabilities = types.AllCapabilities()
	q.capabilities.DeadLetter = q.deadLetters != nil
	q.logger = q.logger.With(slog.String("queue", q.name))

	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Config returns the queue configuration.
func (q *Queue) Config() types.QueueConfig {
	return q.config
}

// Capabilities returns the operations this queue supports.
func (q *Queue) Capabilities() types.Capabilities {
	return q.capabilities
}

func (q *Queue) String() string {
	return "[" + q.name + "]"
}

// IsOpen reports whether the queue has been opened and not closed since.
func (q *Queue) IsOpen() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.opened
}

// Open marks the queue as open. Opening an open queue is a no-op.
func (q *Queue) Open(ctx context.Context, correlationID string) error {
	q.mu.Lock()
	q.opened = true
	q.mu.Unlock()

	q.logger.DebugContext(ctx, "opened queue", slog.String("correlation_id", correlationID))
	return nil
}

// Close marks the queue as closed, stops listening and wakes every blocked
// receiver. Pending and locked messages are kept.
func (q *Queue) Close(ctx context.Context, correlationID string) error {
	q.mu.Lock()
	q.opened = false
	q.listening = false
	for _, w := range q.waiters {
		close(w)
	}
	q.waiters = nil
	q.mu.Unlock()

	q.logger.DebugContext(ctx, "closed queue", slog.String("correlation_id", correlationID))
	return nil
}

// Clear drops all pending messages and all locks.
func (q *Queue) Clear(ctx context.Context, correlationID string) error {
	q.mu.Lock()
	q.messages = nil
	q.locks = make(map[types.LockToken]lock)
	q.mu.Unlock()

	q.logger.DebugContext(ctx, "cleared queue", slog.String("correlation_id", correlationID))
	return nil
}

// MessageCount returns the number of pending messages.
func (q *Queue) MessageCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.messages)
}

// Send stamps the envelope's sent time and appends it to the queue,
// waking one blocked receiver. A nil envelope is ignored.
func (q *Queue) Send(ctx context.Context, correlationID string, env *types.Envelope) error {
	if env == nil {
		return nil
	}

	q.mu.Lock()
	q.pushLocked(env)
	q.mu.Unlock()

	q.counters.Increment(ctx, types.CounterName(q.name, types.CounterSentMessages))
	q.logger.DebugContext(ctx, "sent message",
		slog.String("correlation_id", correlationID),
		slog.String("message", env.String()))

	return nil
}

// Peek returns the head of the queue without removing it, or nil if the queue is empty.
func (q *Queue) Peek(ctx context.Context, correlationID string) (*types.Envelope, error) {
	q.mu.Lock()
	var env *types.Envelope
	if len(q.messages) > 0 {
		env = q.messages[0]
	}
	q.mu.Unlock()

	if env != nil {
		q.logger.DebugContext(ctx, "peeked message",
			slog.String("correlation_id", correlationID),
			slog.String("message", env.String()))
	}

	return env, nil
}

// PeekBatch returns up to n messages from the head of the queue without removing them.
func (q *Queue) PeekBatch(ctx context.Context, correlationID string, n int) ([]*types.Envelope, error) {
	if n < 0 {
		return nil, types.ErrInvalidBatchSize
	}

	q.mu.Lock()
	n = min(n, len(q.messages))
	batch := make([]*types.Envelope, n)
	copy(batch, q.messages[:n])
	q.mu.Unlock()

	q.logger.DebugContext(ctx, "peeked messages",
		slog.String("correlation_id", correlationID),
		slog.Int("count", len(batch)))

	return batch, nil
}

// Receive removes the head message and locks it for the queue's lock timeout.
//
// If the queue is empty, Receive waits until a message is sent, the queue is
// closed, waitTimeout elapses or ctx is done, and then makes exactly one more
// attempt. It returns nil when no message was obtained; a non-positive
// waitTimeout never waits.
func (q *Queue) Receive(ctx context.Context, correlationID string, waitTimeout time.Duration) (*types.Envelope, error) {
	q.mu.Lock()
	env := q.popLocked()

	if env == nil && waitTimeout > 0 {
		wake := make(chan struct{})
		q.waiters = append(q.waiters, wake)
		q.mu.Unlock()

		timer := time.NewTimer(waitTimeout)
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()

		q.mu.Lock()
		q.removeWaiterLocked(wake)
		if ctx.Err() != nil {
			// Pass on a wake-up this receiver may have swallowed.
			if len(q.messages) > 0 {
				q.signalLocked()
			}
			q.mu.Unlock()
			return nil, nil
		}
		env = q.popLocked()
	}

	if env == nil {
		q.mu.Unlock()
		return nil, nil
	}

	q.lockSeq++
	token := q.lockSeq
	env.SetLockReference(token)
	q.locks[token] = lock{
		messageID: env.ID,
		expiresAt: q.now().Add(q.config.LockTimeout),
	}
	q.mu.Unlock()

	q.counters.Increment(ctx, types.CounterName(q.name, types.CounterReceivedMessages))
	q.logger.DebugContext(ctx, "received message",
		slog.String("correlation_id", correlationID),
		slog.String("message", env.String()))

	return env, nil
}

// RenewLock extends the lock of an in-flight message to now + lockTimeout.
// Stale or missing lock references are ignored.
func (q *Queue) RenewLock(ctx context.Context, env *types.Envelope, lockTimeout time.Duration) error {
	if env == nil {
		return nil
	}
	token, ok := env.LockReference()
	if !ok {
		return nil
	}

	q.mu.Lock()
	l, found := q.lookupLocked(token, env)
	if found {
		l.expiresAt = q.now().Add(lockTimeout)
		q.locks[token] = l
	}
	q.mu.Unlock()

	if found {
		q.logger.DebugContext(ctx, "renewed lock",
			slog.String("correlation_id", env.CorrelationID),
			slog.String("message", env.String()))
	}

	return nil
}

// Abandon returns an in-flight message to the tail of the queue.
// If its lock has already expired the message is dropped instead.
func (q *Queue) Abandon(ctx context.Context, env *types.Envelope) error {
	if env == nil {
		return nil
	}
	token, ok := env.LockReference()
	if !ok {
		return nil
	}

	q.mu.Lock()
	l, found := q.lookupLocked(token, env)
	if !found {
		q.mu.Unlock()
		return nil
	}
	delete(q.locks, token)
	env.ClearLockReference()
	expired := !l.expiresAt.After(q.now())
	q.mu.Unlock()

	if expired {
		q.logger.DebugContext(ctx, "skipped abandon of expired message",
			slog.String("correlation_id", env.CorrelationID),
			slog.String("message", env.String()))
		return nil
	}

	q.logger.DebugContext(ctx, "abandoned message",
		slog.String("correlation_id", env.CorrelationID),
		slog.String("message", env.String()))

	return q.Send(ctx, env.CorrelationID, env)
}

// Complete permanently removes an in-flight message.
func (q *Queue) Complete(ctx context.Context, env *types.Envelope) error {
	if env == nil {
		return nil
	}
	token, ok := env.LockReference()
	if !ok {
		return nil
	}

	q.mu.Lock()
	_, found := q.lookupLocked(token, env)
	if found {
		delete(q.locks, token)
		env.ClearLockReference()
	}
	q.mu.Unlock()

	if found {
		q.logger.DebugContext(ctx, "completed message",
			slog.String("correlation_id", env.CorrelationID),
			slog.String("message", env.String()))
	}

	return nil
}

// MoveToDeadLetter permanently removes an in-flight message and reports it
// as dead. The message itself is only retained if a dead letter handler is
// attached and keeps it.
func (q *Queue) MoveToDeadLetter(ctx context.Context, env *types.Envelope) error {
	if env == nil {
		return nil
	}
	token, ok := env.LockReference()
	if !ok {
		return nil
	}

	q.mu.Lock()
	_, found := q.lookupLocked(token, env)
	if found {
		delete(q.locks, token)
		env.ClearLockReference()
	}
	q.mu.Unlock()

	if !found {
		return nil
	}

	q.counters.Increment(ctx, types.CounterName(q.name, types.CounterDeadMessages))
	q.logger.DebugContext(ctx, "moved message to dead letter",
		slog.String("correlation_id", env.CorrelationID),
		slog.String("message", env.String()))

	if q.deadLetters != nil {
		q.deadLetters.HandleDeadLetter(ctx, q.name, env)
	}

	return nil
}

// InFlightCount returns the number of entries in the lock table.
func (q *Queue) InFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.locks)
}

// pushLocked stamps env and appends it, waking one blocked receiver.
// Caller must hold q.mu.
func (q *Queue) pushLocked(env *types.Envelope) {
	env.SentTime = q.now().UTC()
	q.messages = append(q.messages, env)
	q.signalLocked()
}

// popLocked removes and returns the head message. Caller must hold q.mu.
func (q *Queue) popLocked() *types.Envelope {
	if len(q.messages) == 0 {
		return nil
	}
	env := q.messages[0]
	q.messages[0] = nil
	q.messages = q.messages[1:]
	if len(q.messages) == 0 {
		q.messages = nil
	}
	return env
}

// lookupLocked finds the lock for token, ignoring tokens minted for a
// different message. Caller must hold q.mu.
func (q *Queue) lookupLocked(token types.LockToken, env *types.Envelope) (lock, bool) {
	l, ok := q.locks[token]
	if !ok || l.messageID != env.ID {
		return lock{}, false
	}
	return l, true
}

// signalLocked wakes a single blocked receiver. Caller must hold q.mu.
func (q *Queue) signalLocked() {
	if len(q.waiters) == 0 {
		return
	}
	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	close(w)
}

// removeWaiterLocked unregisters a receiver that stopped waiting. Caller must hold q.mu.
func (q *Queue) removeWaiterLocked(w chan struct{}) {
	for i, c := range q.waiters {
		if c == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}
