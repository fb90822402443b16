// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig("orders")

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, KindMemory, cfg.Kind)
	assert.Equal(t, 30*time.Second, cfg.LockTimeout)
	assert.Equal(t, 5*time.Second, cfg.WaitTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestQueueConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*QueueConfig)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(*QueueConfig) {},
			wantErr: false,
		},
		{
			name:    "empty name",
			modify:  func(c *QueueConfig) { c.Name = "" },
			wantErr: true,
		},
		{
			name:    "empty kind",
			modify:  func(c *QueueConfig) { c.Kind = "" },
			wantErr: true,
		},
		{
			name:    "zero lock timeout",
			modify:  func(c *QueueConfig) { c.LockTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative wait timeout",
			modify:  func(c *QueueConfig) { c.WaitTimeout = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultQueueConfig("test")
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCounterName(t *testing.T) {
	assert.Equal(t, "queue.orders.sent_messages", CounterName("orders", CounterSentMessages))
	assert.Equal(t, "queue.orders.received_messages", CounterName("orders", CounterReceivedMessages))
	assert.Equal(t, "queue.orders.dead_messages", CounterName("orders", CounterDeadMessages))
}
