// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/absmach/memq/queue/types"
)

var _ types.Receiver = (*RecordingReceiver)(nil)

// RecordingReceiver is a Receiver that records every envelope it is given.
// An optional handler decides what the receiver returns.
type RecordingReceiver struct {
	mu       sync.Mutex
	messages []*types.Envelope
	handler  func(ctx context.Context, env *types.Envelope, q types.MessageQueue) error
}

// NewRecordingReceiver creates a receiver that records and accepts every message.
func NewRecordingReceiver() *RecordingReceiver {
	return &RecordingReceiver{}
}

// NewRecordingReceiverWithHandler creates a receiver that records every
// message and then delegates to handler.
func NewRecordingReceiverWithHandler(handler func(ctx context.Context, env *types.Envelope, q types.MessageQueue) error) *RecordingReceiver {
	return &RecordingReceiver{handler: handler}
}

// ReceiveMessage records env.
func (r *RecordingReceiver) ReceiveMessage(ctx context.Context, env *types.Envelope, q types.MessageQueue) error {
	r.mu.Lock()
	r.messages = append(r.messages, env)
	handler := r.handler
	r.mu.Unlock()

	if handler != nil {
		return handler(ctx, env, q)
	}
	return nil
}

// Messages returns a copy of the recorded envelopes.
func (r *RecordingReceiver) Messages() []*types.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.Envelope, len(r.messages))
	copy(out, r.messages)
	return out
}

// MessageCount returns the number of recorded envelopes.
func (r *RecordingReceiver) MessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.messages)
}

// Clear forgets all recorded envelopes.
func (r *RecordingReceiver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = nil
}

// WaitForMessages polls until at least n envelopes are recorded or timeout
// elapses, and reports whether the count was reached.
func (r *RecordingReceiver) WaitForMessages(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.MessageCount() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return r.MessageCount() >= n
}
