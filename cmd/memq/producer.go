// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/absmach/memq/config"
	"github.com/absmach/memq/queue"
	"github.com/absmach/memq/queue/types"
	"github.com/absmach/memq/ratelimit"
)

// demoMessage is the payload sent by the producer.
type demoMessage struct {
	Seq      int       `json:"seq"`
	Produced time.Time `json:"produced"`
}

// producer sends JSON messages to a queue at a fixed rate.
type producer struct {
	cfg     config.ProducerConfig
	queue   types.MessageQueue
	limiter *ratelimit.QueueLimiter
	logger  *slog.Logger
}

func newProducer(cfg config.ProducerConfig, q types.MessageQueue, logger *slog.Logger) *producer {
	return &producer{
		cfg:     cfg,
		queue:   q,
		limiter: ratelimit.NewQueueLimiter(cfg.Rate, cfg.Burst),
		logger:  logger,
	}
}

// Run produces until Count messages were sent or ctx is done.
func (p *producer) Run(ctx context.Context) error {
	p.logger.Info("Starting producer",
		slog.String("queue", p.queue.Name()),
		slog.Float64("rate", p.cfg.Rate),
		slog.Int("count", p.cfg.Count))

	for seq := 1; p.cfg.Count == 0 || seq <= p.cfg.Count; seq++ {
		if err := p.limiter.Wait(ctx, p.queue.Name()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		msg := demoMessage{Seq: seq, Produced: time.Now().UTC()}
		if err := queue.SendAsObject(ctx, p.queue, "", p.cfg.MessageType, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}

	p.logger.Info("Producer finished", slog.String("queue", p.queue.Name()), slog.Int("sent", p.cfg.Count))
	return nil
}
