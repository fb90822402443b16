// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/memq/config"
	"github.com/absmach/memq/queue"
	"github.com/absmach/memq/queue/types"
	"github.com/absmach/memq/server/health"
	"github.com/absmach/memq/server/otel"
	"github.com/absmach/memq/webhook"
	oteltrace "go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	slog.Info("Starting memq", "version", "0.1.0")
	slog.Info("Configuration loaded",
		"queues", len(cfg.Queues),
		"health_enabled", cfg.Server.HealthEnabled,
		"metrics_enabled", cfg.Metrics.Enabled,
		"webhook_enabled", cfg.Webhook.Enabled,
		"producer_enabled", cfg.Producer.Enabled,
		"log_level", cfg.Log.Level)

	if err := run(cfg, logger); err != nil {
		slog.Error("memq stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("memq stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdown, err := otel.InitProvider(ctx, cfg.Metrics)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("OpenTelemetry shutdown error", "error", err)
			}
		}()
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Metrics.Endpoint)
	}

	metrics := otel.NewMetrics(nil, logger)
	defer metrics.Close()

	var deadLetters types.DeadLetterHandler
	if cfg.Webhook.Enabled {
		wh, err := webhook.NewNotifier(cfg.Webhook, cfg.Metrics.InstanceID, webhook.NewHTTPSender(), logger)
		if err != nil {
			return err
		}
		defer wh.Close()
		deadLetters = wh
	}

	mgr := queue.NewManager(queue.Config{
		Logger:      logger,
		Counters:    metrics,
		DeadLetters: deadLetters,
	})

	listeners := make([]types.MessageQueue, 0, len(cfg.Queues))
	for _, qc := range cfg.Queues {
		q, err := mgr.CreateQueue(ctx, types.QueueConfig{
			Name:        qc.Name,
			Kind:        qc.Kind,
			LockTimeout: qc.LockTimeout,
			WaitTimeout: qc.WaitTimeout,
		})
		if err != nil {
			return err
		}
		if qc.Listen {
			listeners = append(listeners, q)
		}
	}

	if err := metrics.ObserveQueues(mgr); err != nil {
		return err
	}

	if err := mgr.OpenAll(ctx, ""); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	receiver := newLogReceiver(logger, oteltrace.Tracer("memq"))
	for _, q := range listeners {
		g.Go(func() error {
			slog.Info("Listening on queue", "queue", q.Name())
			return q.Listen(gctx, "", receiver)
		})
	}

	if cfg.Producer.Enabled {
		q, err := mgr.GetQueue(cfg.Producer.Queue)
		if err != nil {
			return err
		}
		p := newProducer(cfg.Producer, q, logger)
		g.Go(func() error {
			return p.Run(gctx)
		})
	}

	if cfg.Server.HealthEnabled {
		healthServer := health.New(health.Config{
			Address:         cfg.Server.HealthAddr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, mgr, logger)
		g.Go(func() error {
			return healthServer.Listen(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down queues")
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return mgr.CloseAll(closeCtx, "")
	})

	return g.Wait()
}
