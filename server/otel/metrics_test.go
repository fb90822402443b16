// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/absmach/memq/queue"
	"github.com/absmach/memq/queue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type staticStats []*queue.QueueStats

func (s staticStats) ListStats() []*queue.QueueStats {
	return s
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMetrics(mp.Meter("test"), logger), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Increment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	sent := types.CounterName("orders", types.CounterSentMessages)
	dead := types.CounterName("orders", types.CounterDeadMessages)

	m.Increment(ctx, sent)
	m.Increment(ctx, sent)
	m.Increment(ctx, dead)

	got := collect(t, reader)
	require.Contains(t, got, sent)
	require.Contains(t, got, dead)
	assert.Equal(t, int64(2), sumValue(t, got[sent]))
	assert.Equal(t, int64(1), sumValue(t, got[dead]))
	assert.Len(t, m.counters, 2)
}

func TestMetrics_IncrementInvalidName(t *testing.T) {
	m, reader := newTestMetrics(t)

	assert.NotPanics(t, func() {
		m.Increment(context.Background(), "queue.bad name!.sent_messages")
	})
	assert.NotContains(t, collect(t, reader), "queue.bad name!.sent_messages")
}

func TestMetrics_ObserveQueues(t *testing.T) {
	m, reader := newTestMetrics(t)

	src := staticStats{
		{Name: "a", MessageCount: 3, InFlight: 1},
		{Name: "b", MessageCount: 0, InFlight: 2},
	}
	require.NoError(t, m.ObserveQueues(src))
	t.Cleanup(func() {
		assert.NoError(t, m.Close())
	})

	got := collect(t, reader)
	require.Contains(t, got, "memq.queue.messages")
	require.Contains(t, got, "memq.queue.in_flight")

	depth := gaugeByQueue(t, got["memq.queue.messages"])
	assert.Equal(t, map[string]int64{"a": 3, "b": 0}, depth)

	inFlight := gaugeByQueue(t, got["memq.queue.in_flight"])
	assert.Equal(t, map[string]int64{"a": 1, "b": 2}, inFlight)
}

func TestMetrics_CloseWithoutObserve(t *testing.T) {
	m, _ := newTestMetrics(t)
	assert.NoError(t, m.Close())
}

func gaugeByQueue(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()

	gauge, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected an int64 gauge, got %T", m.Data)

	out := make(map[string]int64)
	for _, dp := range gauge.DataPoints {
		name, ok := dp.Attributes.Value(attribute.Key("queue"))
		require.True(t, ok)
		out[name.AsString()] = dp.Value
	}
	return out
}
