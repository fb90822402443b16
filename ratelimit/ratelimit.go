// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/absmach/memq/queue/types"
	"golang.org/x/time/rate"
)

// QueueLimiter paces sends per queue name.
type QueueLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewQueueLimiter creates a limiter allowing r sends per second per queue
// with the given burst.
func NewQueueLimiter(r float64, burst int) *QueueLimiter {
	if burst < 1 {
		burst = 1
	}
	return &QueueLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(r),
		burst:    burst,
	}
}

func (l *QueueLimiter) limiter(queue string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[queue]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[queue] = limiter
	}
	return limiter
}

// Allow reports whether a send to queue may happen now.
func (l *QueueLimiter) Allow(queue string) bool {
	return l.limiter(queue).Allow()
}

// Wait blocks until a send to queue is allowed or ctx is done.
func (l *QueueLimiter) Wait(ctx context.Context, queue string) error {
	if err := l.limiter(queue).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for queue %s: %w", queue, err)
	}
	return nil
}

// Send waits for the queue's limiter and then sends env.
func (l *QueueLimiter) Send(ctx context.Context, q types.MessageQueue, correlationID string, env *types.Envelope) error {
	if err := l.Wait(ctx, q.Name()); err != nil {
		return err
	}
	return q.Send(ctx, correlationID, env)
}

// Remove forgets the limiter for a deleted queue.
func (l *QueueLimiter) Remove(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.limiters, queue)
}
