// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

// Capabilities declares which operations a queue kind supports.
// It is advisory: queues do not refuse calls to unsupported operations.
type Capabilities struct {
	MessageCount bool `json:"message_count"`
	Send         bool `json:"send"`
	Receive      bool `json:"receive"`
	Peek         bool `json:"peek"`
	PeekBatch    bool `json:"peek_batch"`
	RenewLock    bool `json:"renew_lock"`
	Abandon      bool `json:"abandon"`
	DeadLetter   bool `json:"dead_letter"`
	Clear        bool `json:"clear"`
}

// AllCapabilities returns a descriptor with every operation supported.
func AllCapabilities() Capabilities {
	return Capabilities{
		MessageCount: true,
		Send:         true,
		Receive:      true,
		Peek:         true,
		PeekBatch:    true,
		RenewLock:    true,
		Abandon:      true,
		DeadLetter:   true,
		Clear:        true,
	}
}
