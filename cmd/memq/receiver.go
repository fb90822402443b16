// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/absmach/memq/queue/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// logReceiver logs every message it is handed and completes it.
type logReceiver struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func newLogReceiver(logger *slog.Logger, tracer trace.Tracer) *logReceiver {
	return &logReceiver{logger: logger, tracer: tracer}
}

func (r *logReceiver) ReceiveMessage(ctx context.Context, env *types.Envelope, q types.MessageQueue) error {
	ctx, span := r.tracer.Start(ctx, "memq.receive", trace.WithAttributes(
		attribute.String("queue", q.Name()),
		attribute.String("message_id", env.ID),
		attribute.String("message_type", env.Type),
	))
	defer span.End()

	r.logger.InfoContext(ctx, "received message",
		slog.String("queue", q.Name()),
		slog.String("correlation_id", env.CorrelationID),
		slog.String("message", env.String()))

	if err := q.Complete(ctx, env); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
