// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/absmach/memq/queue/memory"
	"github.com/absmach/memq/queue/types"
)

// Factory creates a queue of a particular kind. deps is the Manager's
// Config with defaults applied.
type Factory func(cfg types.QueueConfig, deps Config) (types.MessageQueue, error)

// Config holds the collaborators the manager hands to every queue it creates.
type Config struct {
	Logger      *slog.Logger
	Counters    types.Counters
	DeadLetters types.DeadLetterHandler // Optional
}

// QueueStats is a point-in-time view of a queue.
type QueueStats struct {
	Name         string             `json:"name"`
	Kind         string             `json:"kind"`
	Open         bool               `json:"open"`
	Listening    bool               `json:"listening"`
	MessageCount int                `json:"message_count"`
	InFlight     int                `json:"in_flight"`
	Capabilities types.Capabilities `json:"capabilities"`
}

type entry struct {
	queue types.MessageQueue
	kind  string
}

// Manager creates queues by kind and name and manages their lifecycle.
type Manager struct {
	deps      Config
	logger    *slog.Logger
	factories map[string]Factory
	queues    map[string]entry
	mu        sync.RWMutex
}

// NewManager creates a new queue manager with the memory kind registered.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counters := cfg.Counters
	if counters == nil {
		counters = types.NoopCounters{}
	}

	m := &Manager{
		deps: Config{
			Logger:      logger,
			Counters:    counters,
			DeadLetters: cfg.DeadLetters,
		},
		logger:    logger,
		factories: make(map[string]Factory),
		queues:    make(map[string]entry),
	}
	m.RegisterKind(types.KindMemory, NewMemoryQueue)

	return m
}

// NewMemoryQueue is the Factory for in-memory queues.
func NewMemoryQueue(cfg types.QueueConfig, deps Config) (types.MessageQueue, error) {
	opts := []memory.Option{
		memory.WithLogger(deps.Logger),
		memory.WithCounters(deps.Counters),
	}
	if deps.DeadLetters != nil {
		opts = append(opts, memory.WithDeadLetterHandler(deps.DeadLetters))
	}
	return memory.New(cfg, opts...), nil
}

// RegisterKind registers or replaces the factory for a queue kind.
func (m *Manager) RegisterKind(kind string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.factories[kind] = f
}

// CreateQueue creates and registers a new queue.
func (m *Manager) CreateQueue(ctx context.Context, cfg types.QueueConfig) (types.MessageQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.queues[cfg.Name]; exists {
		return nil, fmt.Errorf("%w: %s", types.ErrQueueAlreadyExists, cfg.Name)
	}

	factory, ok := m.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownKind, cfg.Kind)
	}

	q, err := factory(cfg, m.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue %s: %w", cfg.Name, err)
	}

	m.queues[cfg.Name] = entry{queue: q, kind: cfg.Kind}
	m.logger.InfoContext(ctx, "queue created",
		slog.String("queue", cfg.Name),
		slog.String("kind", cfg.Kind),
		slog.Duration("lock_timeout", cfg.LockTimeout))

	return q, nil
}

// GetQueue returns a queue by name.
func (m *Manager) GetQueue(name string) (types.MessageQueue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrQueueNotFound, name)
	}
	return e.queue, nil
}

// ListQueues returns all queues sorted by name.
func (m *Manager) ListQueues() []types.MessageQueue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queues := make([]types.MessageQueue, 0, len(m.queues))
	for _, e := range m.queues {
		queues = append(queues, e.queue)
	}
	sort.Slice(queues, func(i, j int) bool {
		return queues[i].Name() < queues[j].Name()
	})
	return queues
}

// DeleteQueue closes a queue and removes it from the manager.
func (m *Manager) DeleteQueue(ctx context.Context, name string) error {
	m.mu.Lock()
	e, ok := m.queues[name]
	if ok {
		delete(m.queues, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", types.ErrQueueNotFound, name)
	}

	if err := e.queue.Close(ctx, ""); err != nil {
		return fmt.Errorf("failed to close queue %s: %w", name, err)
	}

	m.logger.InfoContext(ctx, "queue deleted", slog.String("queue", name))
	return nil
}

// OpenAll opens every registered queue.
func (m *Manager) OpenAll(ctx context.Context, correlationID string) error {
	var errs []error
	for _, q := range m.ListQueues() {
		if err := q.Open(ctx, correlationID); err != nil {
			errs = append(errs, fmt.Errorf("failed to open queue %s: %w", q.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CloseAll closes every registered queue, which also stops their listeners.
func (m *Manager) CloseAll(ctx context.Context, correlationID string) error {
	var errs []error
	for _, q := range m.ListQueues() {
		if err := q.Close(ctx, correlationID); err != nil {
			errs = append(errs, fmt.Errorf("failed to close queue %s: %w", q.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// GetStats returns statistics for a queue.
func (m *Manager) GetStats(name string) (*QueueStats, error) {
	m.mu.RLock()
	e, ok := m.queues[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrQueueNotFound, name)
	}
	return statsFor(e), nil
}

// ListStats returns statistics for every queue, sorted by name.
func (m *Manager) ListStats() []*QueueStats {
	m.mu.RLock()
	entries := make([]entry, 0, len(m.queues))
	for _, e := range m.queues {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	stats := make([]*QueueStats, 0, len(entries))
	for _, e := range entries {
		stats = append(stats, statsFor(e))
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

func statsFor(e entry) *QueueStats {
	s := &QueueStats{
		Name:         e.queue.Name(),
		Kind:         e.kind,
		Open:         e.queue.IsOpen(),
		Listening:    e.queue.IsListening(),
		MessageCount: e.queue.MessageCount(),
		Capabilities: e.queue.Capabilities(),
	}
	if c, ok := e.queue.(interface{ InFlightCount() int }); ok {
		s.InFlight = c.InFlightCount()
	}
	return s
}

// SendAsObject encodes v as JSON into a new envelope and sends it to q.
func SendAsObject(ctx context.Context, q types.MessageQueue, correlationID, messageType string, v any) error {
	env, err := types.NewEnvelopeFromJSON(correlationID, messageType, v)
	if err != nil {
		return err
	}
	return q.Send(ctx, correlationID, env)
}
