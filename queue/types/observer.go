// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import "context"

// Counter names are built as "queue.<name>.<suffix>".
const (
	CounterSentMessages     = "sent_messages"
	CounterReceivedMessages = "received_messages"
	CounterDeadMessages     = "dead_messages"
)

// CounterName returns the full counter name for a queue.
func CounterName(queueName, suffix string) string {
	return "queue." + queueName + "." + suffix
}

// Counters receives counter increments from queues.
// Implementations must not block and must not panic.
type Counters interface {
	Increment(ctx context.Context, name string)
}

// DeadLetterHandler is notified when a message is moved to the dead letter queue.
type DeadLetterHandler interface {
	HandleDeadLetter(ctx context.Context, queueName string, env *Envelope)
}

// DeadLetterHandlerFunc adapts a function to the DeadLetterHandler interface.
type DeadLetterHandlerFunc func(ctx context.Context, queueName string, env *Envelope)

// HandleDeadLetter calls f(ctx, queueName, env).
func (f DeadLetterHandlerFunc) HandleDeadLetter(ctx context.Context, queueName string, env *Envelope) {
	f(ctx, queueName, env)
}

// NoopCounters discards every increment.
type NoopCounters struct{}

// Increment does nothing.
func (NoopCounters) Increment(context.Context, string) {}
