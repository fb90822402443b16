// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"time"
)

// Queue kinds.
const (
	KindMemory = "memory"
)

const (
	// DefaultLockTimeout is how long a received message stays locked.
	DefaultLockTimeout = 30 * time.Second
	// DefaultWaitTimeout bounds each receive issued by the listen loop.
	DefaultWaitTimeout = 5 * time.Second
)

// QueueConfig defines configuration for a queue.
type QueueConfig struct {
	Name string
	Kind string

	// LockTimeout is the visibility timeout applied to every receive.
	LockTimeout time.Duration
	// WaitTimeout is the receive wait used by the listen loop. It bounds
	// how long EndListen takes to be observed.
	WaitTimeout time.Duration
}

// DefaultQueueConfig returns a memory queue configuration with default timeouts.
func DefaultQueueConfig(name string) QueueConfig {
	return QueueConfig{
		Name:        name,
		Kind:        KindMemory,
		LockTimeout: DefaultLockTimeout,
		WaitTimeout: DefaultWaitTimeout,
	}
}

// Validate validates the queue configuration.
func (c *QueueConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidConfig)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("%w: lock timeout must be positive", ErrInvalidConfig)
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("%w: wait timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
