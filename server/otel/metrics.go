// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/memq/queue"
	"github.com/absmach/memq/queue/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var _ types.Counters = (*Metrics)(nil)

// StatsSource lists point-in-time queue statistics.
type StatsSource interface {
	ListStats() []*queue.QueueStats
}

// Metrics holds OpenTelemetry metric instruments for the queues.
// Named counters are created on first use.
type Metrics struct {
	meter  metric.Meter
	logger *slog.Logger

	mu       sync.Mutex
	counters map[string]metric.Int64Counter

	// Gauges
	queueDepth    metric.Int64ObservableGauge
	queueInFlight metric.Int64ObservableGauge
	registration  metric.Registration
}

// NewMetrics creates a new Metrics instance. A nil meter uses the global
// meter provider.
func NewMetrics(meter metric.Meter, logger *slog.Logger) *Metrics {
	if meter == nil {
		meter = otel.Meter("memq")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Metrics{
		meter:    meter,
		logger:   logger,
		counters: make(map[string]metric.Int64Counter),
	}
}

// Increment adds one to the named counter.
func (m *Metrics) Increment(ctx context.Context, name string) {
	c, err := m.counter(name)
	if err != nil {
		m.logger.Error("failed to record metric", slog.String("counter", name), slog.String("error", err.Error()))
		return
	}
	c.Add(ctx, 1)
}

func (m *Metrics) counter(name string) (metric.Int64Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c, nil
	}

	c, err := m.meter.Int64Counter(name, metric.WithDescription("Total "+name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	m.counters[name] = c
	return c, nil
}

// ObserveQueues registers gauges reporting pending and in-flight message
// counts for every queue in src.
func (m *Metrics) ObserveQueues(src StatsSource) error {
	var err error

	m.queueDepth, err = m.meter.Int64ObservableGauge(
		"memq.queue.messages",
		metric.WithDescription("Number of pending messages per queue"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queueDepth gauge: %w", err)
	}

	m.queueInFlight, err = m.meter.Int64ObservableGauge(
		"memq.queue.in_flight",
		metric.WithDescription("Number of locked messages per queue"),
	)
	if err != nil {
		return fmt.Errorf("failed to create queueInFlight gauge: %w", err)
	}

	m.registration, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, s := range src.ListStats() {
			attrs := metric.WithAttributes(attribute.String("queue", s.Name))
			o.ObserveInt64(m.queueDepth, int64(s.MessageCount), attrs)
			o.ObserveInt64(m.queueInFlight, int64(s.InFlight), attrs)
		}
		return nil
	}, m.queueDepth, m.queueInFlight)
	if err != nil {
		return fmt.Errorf("failed to register queue gauges: %w", err)
	}

	return nil
}

// Close unregisters the queue gauges.
func (m *Metrics) Close() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
