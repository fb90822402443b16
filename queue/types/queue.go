// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"time"
)

// Receiver handles messages delivered by a listening queue.
// It is called synchronously from the listen loop, on whatever goroutine
// runs that loop.
type Receiver interface {
	ReceiveMessage(ctx context.Context, env *Envelope, queue MessageQueue) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(ctx context.Context, env *Envelope, queue MessageQueue) error

// ReceiveMessage calls f(ctx, env, queue).
func (f ReceiverFunc) ReceiveMessage(ctx context.Context, env *Envelope, queue MessageQueue) error {
	return f(ctx, env, queue)
}

// MessageQueue is a queue with visibility-timeout delivery semantics.
//
// Receive hands out an envelope together with a lock reference. The consumer
// resolves the delivery with exactly one of Complete, Abandon or
// MoveToDeadLetter. Resolving an envelope that is not in flight is a no-op.
type MessageQueue interface {
	Name() string
	Capabilities() Capabilities

	IsOpen() bool
	Open(ctx context.Context, correlationID string) error
	Close(ctx context.Context, correlationID string) error
	Clear(ctx context.Context, correlationID string) error

	// MessageCount returns the number of messages waiting to be delivered.
	MessageCount() int

	Send(ctx context.Context, correlationID string, env *Envelope) error
	Peek(ctx context.Context, correlationID string) (*Envelope, error)
	PeekBatch(ctx context.Context, correlationID string, n int) ([]*Envelope, error)

	// Receive removes the head message and locks it. It waits up to
	// waitTimeout for a message to arrive and returns nil if none did.
	Receive(ctx context.Context, correlationID string, waitTimeout time.Duration) (*Envelope, error)

	RenewLock(ctx context.Context, env *Envelope, lockTimeout time.Duration) error
	Abandon(ctx context.Context, env *Envelope) error
	Complete(ctx context.Context, env *Envelope) error
	MoveToDeadLetter(ctx context.Context, env *Envelope) error

	// Listen blocks, delivering messages to receiver until EndListen is
	// called, the queue is closed or ctx is done.
	Listen(ctx context.Context, correlationID string, receiver Receiver) error
	// BeginListen runs Listen on a separate goroutine.
	BeginListen(ctx context.Context, correlationID string, receiver Receiver)
	EndListen(ctx context.Context, correlationID string) error
	IsListening() bool
}
