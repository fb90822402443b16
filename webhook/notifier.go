// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"sync"
	"time"

	"github.com/absmach/memq/config"
	"github.com/absmach/memq/queue/types"
	"github.com/sony/gobreaker"
)

var _ types.DeadLetterHandler = (*Notifier)(nil)

// ErrClosed is returned when notifying after Close.
var ErrClosed = errors.New("webhook notifier is closed")

// Notifier delivers webhook events through a worker pool with a circuit
// breaker per endpoint.
type Notifier struct {
	cfg            config.WebhookConfig
	instanceID     string
	endpoints      []endpointConfig
	eventQueue     chan eventJob
	breakers       map[string]*gobreaker.CircuitBreaker
	sender         Sender
	logger         *slog.Logger
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	includePayload bool
}

type endpointConfig struct {
	name         string
	url          string
	queueFilters []string // glob patterns on queue names
	headers      map[string]string
	timeout      time.Duration
	retryConfig  config.RetryConfig
}

type eventJob struct {
	event    Event
	endpoint endpointConfig
	attempt  int
}

// NewNotifier creates a new webhook notifier and starts its workers.
func NewNotifier(cfg config.WebhookConfig, instanceID string, sender Sender, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}

	for _, ep := range cfg.Endpoints {
		for _, f := range ep.Queues {
			if _, err := path.Match(f, ""); err != nil {
				return nil, fmt.Errorf("invalid queue filter %q for endpoint %s: %w", f, ep.Name, err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	endpoints := make([]endpointConfig, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		timeout := cfg.Defaults.Timeout
		if ep.Timeout > 0 {
			timeout = ep.Timeout
		}

		retryConfig := cfg.Defaults.Retry
		if ep.Retry != nil {
			retryConfig = *ep.Retry
		}

		endpoints = append(endpoints, endpointConfig{
			name:         ep.Name,
			url:          ep.URL,
			queueFilters: ep.Queues,
			headers:      ep.Headers,
			timeout:      timeout,
			retryConfig:  retryConfig,
		})
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, ep := range endpoints {
		breakers[ep.name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        ep.name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     cfg.Defaults.CircuitBreaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.Defaults.CircuitBreaker.FailureThreshold)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("webhook circuit breaker state changed",
					slog.String("endpoint", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	n := &Notifier{
		cfg:            cfg,
		instanceID:     instanceID,
		endpoints:      endpoints,
		eventQueue:     make(chan eventJob, cfg.QueueSize),
		breakers:       breakers,
		sender:         sender,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		includePayload: cfg.IncludePayload,
	}

	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	logger.Info("webhook notifier started",
		slog.Int("workers", workers),
		slog.Int("queue_size", cfg.QueueSize),
		slog.Int("endpoints", len(endpoints)))

	return n, nil
}

// HandleDeadLetter publishes a message.dead_lettered event for env.
func (n *Notifier) HandleDeadLetter(ctx context.Context, queueName string, env *types.Envelope) {
	if env == nil {
		return
	}
	ev := NewMessageDeadLettered(queueName, env, n.includePayload)
	if err := n.Notify(ctx, ev); err != nil {
		n.logger.Warn("dead letter notification skipped",
			slog.String("queue", queueName),
			slog.String("message_id", env.ID),
			slog.String("error", err.Error()))
	}
}

// Notify queues an event for every matching endpoint without blocking.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	if n.ctx.Err() != nil {
		return ErrClosed
	}

	for _, endpoint := range n.endpoints {
		if !shouldNotify(endpoint, ev) {
			continue
		}

		job := eventJob{
			event:    ev,
			endpoint: endpoint,
			attempt:  0,
		}

		select {
		case n.eventQueue <- job:
		default:
			if n.cfg.DropPolicy == "oldest" {
				select {
				case <-n.eventQueue: // drop oldest
				default:
				}
				select {
				case n.eventQueue <- job:
				default:
					n.logger.Error("webhook queue full, event dropped",
						slog.String("event_type", ev.Type()),
						slog.String("endpoint", endpoint.name))
				}
			} else {
				n.logger.Error("webhook queue full, event dropped",
					slog.String("event_type", ev.Type()),
					slog.String("endpoint", endpoint.name))
			}
		}
	}

	return nil
}

// shouldNotify checks if an endpoint should be notified for this event.
func shouldNotify(endpoint endpointConfig, ev Event) bool {
	if len(endpoint.queueFilters) == 0 {
		return true
	}
	for _, filter := range endpoint.queueFilters {
		if queueMatches(filter, ev.Queue()) {
			return true
		}
	}
	return false
}

// queueMatches reports whether a queue name matches a glob filter.
func queueMatches(filter, queue string) bool {
	ok, err := path.Match(filter, queue)
	return err == nil && ok
}

// worker processes events until the notifier is closed, then drains what is
// left in the queue.
func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			for {
				select {
				case job := <-n.eventQueue:
					n.processJob(job)
				default:
					return
				}
			}
		case job := <-n.eventQueue:
			n.processJob(job)
		}
	}
}

// processJob sends a webhook with retry logic.
func (n *Notifier) processJob(job eventJob) {
	breaker := n.breakers[job.endpoint.name]

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, n.sendWebhook(job)
	})
	if err == nil {
		return
	}

	if job.attempt >= job.endpoint.retryConfig.MaxAttempts-1 || n.ctx.Err() != nil {
		n.logger.Error("webhook delivery failed after max retries",
			slog.String("endpoint", job.endpoint.name),
			slog.String("event_type", job.event.Type()),
			slog.Int("attempts", job.attempt+1),
			slog.String("error", err.Error()))
		return
	}

	job.attempt++
	delay := calculateRetryDelay(job.attempt, job.endpoint.retryConfig)

	n.logger.Debug("webhook delivery failed, retrying",
		slog.String("endpoint", job.endpoint.name),
		slog.String("event_type", job.event.Type()),
		slog.Int("attempt", job.attempt),
		slog.Duration("retry_after", delay),
		slog.String("error", err.Error()))

	time.AfterFunc(delay, func() {
		if n.ctx.Err() != nil {
			return
		}
		select {
		case n.eventQueue <- job:
		default:
			n.logger.Error("failed to requeue event for retry",
				slog.String("endpoint", job.endpoint.name),
				slog.String("event_type", job.event.Type()))
		}
	})
}

// sendWebhook marshals the event and delegates to the protocol-specific sender.
func (n *Notifier) sendWebhook(job eventJob) error {
	envelope := job.event.Wrap(n.instanceID)

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), job.endpoint.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, job.endpoint.url, job.endpoint.headers, payload, job.endpoint.timeout); err != nil {
		return err
	}

	n.logger.Debug("webhook delivered successfully",
		slog.String("endpoint", job.endpoint.name),
		slog.String("event_type", job.event.Type()))

	return nil
}

// calculateRetryDelay calculates exponential backoff delay.
func calculateRetryDelay(attempt int, cfg config.RetryConfig) time.Duration {
	delay := float64(cfg.InitialInterval) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxInterval > 0 && delay > float64(cfg.MaxInterval) {
		delay = float64(cfg.MaxInterval)
	}
	return time.Duration(delay)
}

// Close stops accepting events and waits for queued events to be delivered.
func (n *Notifier) Close() error {
	n.logger.Info("shutting down webhook notifier")

	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	timeout := n.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		n.logger.Info("webhook notifier stopped gracefully")
	case <-time.After(timeout):
		n.logger.Warn("webhook notifier shutdown timeout, some events may be lost",
			slog.Int("queue_depth", len(n.eventQueue)))
	}

	return nil
}
