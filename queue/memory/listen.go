// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/memq/queue/types"
)

// IsListening reports whether a listen loop is active.
func (q *Queue) IsListening() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.listening
}

// Listen receives messages and hands them to receiver one at a time until
// EndListen is called, the queue is closed or ctx is done. Only one listen
// loop may run per queue.
//
// A receiver error is logged and the message is left locked: it is neither
// completed nor abandoned. Receivers that want redelivery must call Abandon.
func (q *Queue) Listen(ctx context.Context, correlationID string, receiver types.Receiver) error {
	q.mu.Lock()
	if q.listening {
		q.mu.Unlock()
		q.logger.ErrorContext(ctx, "already listening",
			slog.String("correlation_id", correlationID))
		return types.ErrAlreadyListening
	}
	q.listening = true
	q.listenSeq++
	seq := q.listenSeq
	q.mu.Unlock()

	q.logger.DebugContext(ctx, "started listening", slog.String("correlation_id", correlationID))

	for q.listeningAs(seq) && ctx.Err() == nil {
		env, err := q.Receive(ctx, correlationID, q.config.WaitTimeout)
		if err != nil {
			q.logger.ErrorContext(ctx, "failed to receive message",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()))
			continue
		}
		if env == nil {
			continue
		}
		if !q.listeningAs(seq) || ctx.Err() != nil {
			// Stopped while the message was being received; put it back.
			_ = q.Abandon(ctx, env)
			break
		}
		q.dispatch(ctx, correlationID, env, receiver)
	}

	q.mu.Lock()
	if q.listenSeq == seq {
		q.listening = false
	}
	q.mu.Unlock()

	q.logger.DebugContext(ctx, "stopped listening", slog.String("correlation_id", correlationID))
	return nil
}

// BeginListen runs Listen on a new goroutine and returns immediately.
// Failures inside the loop are logged, never returned.
func (q *Queue) BeginListen(ctx context.Context, correlationID string, receiver types.Receiver) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.ErrorContext(ctx, "failed to listen messages",
					slog.String("correlation_id", correlationID),
					slog.String("error", fmt.Sprint(r)))
			}
		}()

		if err := q.Listen(ctx, correlationID, receiver); err != nil && !errors.Is(err, types.ErrAlreadyListening) {
			q.logger.ErrorContext(ctx, "failed to listen messages",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()))
		}
	}()
}

// EndListen stops the listen loop. The loop notices after its current
// receive returns, which takes at most the configured wait timeout.
func (q *Queue) EndListen(ctx context.Context, correlationID string) error {
	q.mu.Lock()
	q.listening = false
	q.mu.Unlock()

	q.logger.DebugContext(ctx, "ending listening", slog.String("correlation_id", correlationID))
	return nil
}

func (q *Queue) listeningAs(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.listening && q.listenSeq == seq
}

// dispatch calls the receiver, logging returned errors and recovered panics.
func (q *Queue) dispatch(ctx context.Context, correlationID string, env *types.Envelope, receiver types.Receiver) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorContext(ctx, "receiver panicked",
				slog.String("correlation_id", correlationID),
				slog.String("message", env.String()),
				slog.String("error", fmt.Sprint(r)))
		}
	}()

	if err := receiver.ReceiveMessage(ctx, env, q); err != nil {
		q.logger.ErrorContext(ctx, "failed to process the message",
			slog.String("correlation_id", correlationID),
			slog.String("message", env.String()),
			slog.String("error", err.Error()))
	}
}
