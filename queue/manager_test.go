// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/memq/queue/memory"
	"github.com/absmach/memq/queue/types"
	"github.com/absmach/memq/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCounters) Increment(_ context.Context, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

func (c *countingCounters) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[name]
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	mgr := NewManager(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(func() {
		_ = mgr.CloseAll(context.Background(), "")
	})
	return mgr
}

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{})
	require.NotNil(t, mgr)
	assert.NotNil(t, mgr.logger)
	assert.NotNil(t, mgr.deps.Counters)
	assert.Contains(t, mgr.factories, types.KindMemory)
	assert.Empty(t, mgr.ListQueues())
}

func TestManager_CreateQueue(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	q, err := mgr.CreateQueue(ctx, types.DefaultQueueConfig("orders"))
	require.NoError(t, err)
	assert.Equal(t, "orders", q.Name())
	assert.IsType(t, &memory.Queue{}, q)
	assert.False(t, q.IsOpen())

	got, err := mgr.GetQueue("orders")
	require.NoError(t, err)
	assert.Same(t, q, got)
}

func TestManager_CreateQueueErrors(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	_, err := mgr.CreateQueue(ctx, types.DefaultQueueConfig("orders"))
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  types.QueueConfig
		err  error
	}{
		{
			name: "duplicate name",
			cfg:  types.DefaultQueueConfig("orders"),
			err:  types.ErrQueueAlreadyExists,
		},
		{
			name: "unknown kind",
			cfg: types.QueueConfig{
				Name:        "events",
				Kind:        "kafka",
				LockTimeout: time.Second,
				WaitTimeout: time.Second,
			},
			err: types.ErrUnknownKind,
		},
		{
			name: "invalid config",
			cfg:  types.QueueConfig{Name: "events", Kind: types.KindMemory},
			err:  types.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.CreateQueue(ctx, tt.cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestManager_RegisterKind(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	var gotCfg types.QueueConfig
	mgr.RegisterKind("custom", func(cfg types.QueueConfig, deps Config) (types.MessageQueue, error) {
		gotCfg = cfg
		return NewMemoryQueue(cfg, deps)
	})
	mgr.RegisterKind("broken", func(types.QueueConfig, Config) (types.MessageQueue, error) {
		return nil, errors.New("unavailable")
	})

	cfg := types.DefaultQueueConfig("custom-queue")
	cfg.Kind = "custom"
	q, err := mgr.CreateQueue(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "custom-queue", q.Name())
	assert.Equal(t, cfg, gotCfg)

	cfg = types.DefaultQueueConfig("broken-queue")
	cfg.Kind = "broken"
	_, err = mgr.CreateQueue(ctx, cfg)
	assert.Error(t, err)

	_, err = mgr.GetQueue("broken-queue")
	assert.ErrorIs(t, err, types.ErrQueueNotFound)
}

func TestManager_FactoryConfigDefaults(t *testing.T) {
	mgr := NewManager(Config{})

	var got Config
	mgr.RegisterKind("custom", func(cfg types.QueueConfig, deps Config) (types.MessageQueue, error) {
		got = deps
		return NewMemoryQueue(cfg, deps)
	})

	cfg := types.DefaultQueueConfig("custom-queue")
	cfg.Kind = "custom"
	_, err := mgr.CreateQueue(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotNil(t, got.Logger)
	assert.Equal(t, types.NoopCounters{}, got.Counters)
	assert.Nil(t, got.DeadLetters)
}

func TestManager_GetQueueNotFound(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.GetQueue("missing")
	assert.ErrorIs(t, err, types.ErrQueueNotFound)
}

func TestManager_ListQueuesSorted(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := mgr.CreateQueue(ctx, types.DefaultQueueConfig(name))
		require.NoError(t, err)
	}

	var names []string
	for _, q := range mgr.ListQueues() {
		names = append(names, q.Name())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestManager_DeleteQueue(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	q, err := mgr.CreateQueue(ctx, types.DefaultQueueConfig("orders"))
	require.NoError(t, err)
	require.NoError(t, q.Open(ctx, ""))

	require.NoError(t, mgr.DeleteQueue(ctx, "orders"))
	assert.False(t, q.IsOpen())

	_, err = mgr.GetQueue("orders")
	assert.ErrorIs(t, err, types.ErrQueueNotFound)

	err = mgr.DeleteQueue(ctx, "orders")
	assert.ErrorIs(t, err, types.ErrQueueNotFound)
}

func TestManager_OpenCloseAll(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	for _, name := range []string{"a", "b"} {
		_, err := mgr.CreateQueue(ctx, types.DefaultQueueConfig(name))
		require.NoError(t, err)
	}

	require.NoError(t, mgr.OpenAll(ctx, "123"))
	for _, q := range mgr.ListQueues() {
		assert.True(t, q.IsOpen(), q.Name())
	}

	require.NoError(t, mgr.CloseAll(ctx, "123"))
	for _, q := range mgr.ListQueues() {
		assert.False(t, q.IsOpen(), q.Name())
	}
}

func TestManager_CloseAllStopsListeners(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	cfg := types.DefaultQueueConfig("orders")
	cfg.WaitTimeout = 50 * time.Millisecond
	q, err := mgr.CreateQueue(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.OpenAll(ctx, ""))

	q.BeginListen(ctx, "", testutil.NewRecordingReceiver())
	require.Eventually(t, q.IsListening, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, mgr.CloseAll(ctx, ""))
	assert.False(t, q.IsListening())
}

func TestManager_SharedDependencies(t *testing.T) {
	ctx := context.Background()
	counters := &countingCounters{}

	var mu sync.Mutex
	var dead []string
	mgr := NewManager(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Counters: counters,
		DeadLetters: types.DeadLetterHandlerFunc(func(_ context.Context, queue string, env *types.Envelope) {
			mu.Lock()
			defer mu.Unlock()
			dead = append(dead, queue+":"+env.ID)
		}),
	})

	cfg := types.DefaultQueueConfig("orders")
	cfg.WaitTimeout = 50 * time.Millisecond
	q, err := mgr.CreateQueue(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, q.Capabilities().DeadLetter)

	env := types.NewEnvelopeFromString("", "Order", "x")
	require.NoError(t, q.Send(ctx, "", env))
	got, err := q.Receive(ctx, "", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, q.MoveToDeadLetter(ctx, got))

	assert.Equal(t, 1, counters.get(types.CounterName("orders", types.CounterSentMessages)))
	assert.Equal(t, 1, counters.get(types.CounterName("orders", types.CounterReceivedMessages)))
	assert.Equal(t, 1, counters.get(types.CounterName("orders", types.CounterDeadMessages)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"orders:" + env.ID}, dead)
}

func TestManager_Stats(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	for _, name := range []string{"b", "a"} {
		_, err := mgr.CreateQueue(ctx, types.DefaultQueueConfig(name))
		require.NoError(t, err)
	}
	require.NoError(t, mgr.OpenAll(ctx, ""))

	q, err := mgr.GetQueue("a")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Send(ctx, "", types.NewEnvelopeFromString("", "T", "m")))
	}
	_, err = q.Receive(ctx, "", 0)
	require.NoError(t, err)

	stats, err := mgr.GetStats("a")
	require.NoError(t, err)
	assert.Equal(t, &QueueStats{
		Name:         "a",
		Kind:         types.KindMemory,
		Open:         true,
		MessageCount: 2,
		InFlight:     1,
		Capabilities: q.Capabilities(),
	}, stats)

	all := mgr.ListStats()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)
	assert.Equal(t, 0, all[1].MessageCount)

	_, err = mgr.GetStats("missing")
	assert.ErrorIs(t, err, types.ErrQueueNotFound)
}

func TestSendAsObject(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)

	q, err := mgr.CreateQueue(ctx, types.DefaultQueueConfig("orders"))
	require.NoError(t, err)

	type order struct {
		ID    string `json:"id"`
		Total int    `json:"total"`
	}
	require.NoError(t, SendAsObject(ctx, q, "123", "Order", order{ID: "o-1", Total: 42}))

	env, err := q.Peek(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "123", env.CorrelationID)
	assert.Equal(t, "Order", env.Type)
	assert.JSONEq(t, `{"id":"o-1","total":42}`, env.PayloadAsString())

	var got order
	require.NoError(t, env.PayloadAsJSON(&got))
	assert.Equal(t, order{ID: "o-1", Total: 42}, got)

	err = SendAsObject(ctx, q, "", "Bad", make(chan int))
	assert.Error(t, err)
	assert.Equal(t, 1, q.MessageCount())
}
