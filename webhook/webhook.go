// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package webhook delivers queue events, such as dead-lettered messages, to
// HTTP endpoints.
package webhook

import (
	"context"
	"time"
)

// Sender is the protocol-specific sender interface.
type Sender interface {
	// Send sends a webhook payload to the specified URL.
	// Returns error if the send fails.
	Send(ctx context.Context, url string, headers map[string]string, payload []byte, timeout time.Duration) error
}
