// Package broker provides a durable at-least-once message queue on Redis
// with manual acknowledge semantics. Published bodies are opaque UTF-8 JSON.
//
// Delivery model: a consumer atomically moves one body from its queue to a
// per-consumer processing list (BRPOPLPUSH) and removes it only after the
// handler returns a verdict. Bodies left in a processing list by a crashed
// consumer are pushed back onto the source queue the next time that consumer
// starts, which is where the at-least-once duplicate window comes from.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
)

// Queue names shared by the pipeline components.
const (
	QueueCreated   = "artifact.created.queue"
	QueueSubmitted = "artifact.submitted.queue"
)

// Connection establishment bounds. The broker may simply not be up yet when
// a component starts, so connect failures are retried on a fixed cadence
// before the component gives up its consumer role.
const (
	connectAttempts = 30
	connectDelay    = 5 * time.Second
)

// Verdict is the terminal disposition of one delivered message. The handler
// decides; the consumer loop owns the Redis calls that enact it.
type Verdict int

const (
	// Ack removes the message permanently.
	Ack Verdict = iota
	// RejectRequeue pushes the message back onto its source queue for
	// redelivery.
	RejectRequeue
	// RejectDrop removes the message from the source queue and parks it on
	// the queue's dead list for operator attention.
	RejectDrop
)

func (v Verdict) String() string {
	switch v {
	case Ack:
		return "ack"
	case RejectRequeue:
		return "reject-requeue"
	case RejectDrop:
		return "reject-drop"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// HandlerFunc processes one message body and returns its verdict. It must
// not panic past its boundary; the loop recovers and drops, but that path is
// for programming faults only.
type HandlerFunc func(ctx context.Context, body []byte) Verdict

// Publisher is the subset of Broker the worker needs to emit events.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

type Broker struct {
	rdb         *redis.Client
	logger      *slog.Logger
	pollTimeout time.Duration
}

// Option configures a Broker.
type Option func(*Broker)

// WithPollTimeout overrides how long a consumer blocks waiting for one
// delivery before re-checking its context. go-redis truncates blocking-pop
// timeouts below one second up to one second, warning on every poll, so
// values under 1s are clamped to 1s.
func WithPollTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d <= 0 {
			return
		}
		if d < time.Second {
			d = time.Second
		}
		b.pollTimeout = d
	}
}

// New wraps an established Redis client. Use Connect for the bounded
// startup retry behavior.
func New(rdb *redis.Client, logger *slog.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{rdb: rdb, logger: logger, pollTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect dials Redis and pings it until it answers, up to 30 attempts
// spaced 5 seconds apart. This is startup resilience, not a steady-state
// retry policy: once connected, transport errors surface per operation.
func Connect(ctx context.Context, addr, password string, logger *slog.Logger, opts ...Option) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})

	attempt := 0
	ping := func() error {
		attempt++
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("broker not reachable", "addr", addr, "attempt", attempt, "max", connectAttempts, "err", err)
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(connectDelay), connectAttempts-1), ctx)
	if err := backoff.Retry(ping, bo); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("broker connect after %d attempts: %w", attempt, err)
	}
	logger.Info("connected to broker", "addr", addr)
	return New(rdb, logger, opts...), nil
}

func (b *Broker) Close() error { return b.rdb.Close() }

// Client exposes the underlying Redis client for scrape-time metric
// collectors. Consumers must not issue blocking reads on it.
func (b *Broker) Client() *redis.Client { return b.rdb }

func processingKey(queue, consumer string) string { return queue + ":processing:" + consumer }

// DeadKey returns the dead-letter list for a queue.
func DeadKey(queue string) string { return queue + ":dead" }

// Publish appends one message body to a queue.
func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	if err := b.rdb.LPush(ctx, queue, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Consume runs the single-threaded consumer loop for a queue until ctx is
// canceled. Exactly one message is in flight at a time. The consumer tag
// must be stable across restarts of the same logical consumer so its
// processing list can be re-driven.
func (b *Broker) Consume(ctx context.Context, queue, consumer string, h HandlerFunc) error {
	processing := processingKey(queue, consumer)

	if n, err := b.redrive(ctx, queue, processing); err != nil {
		return fmt.Errorf("redrive %s: %w", processing, err)
	} else if n > 0 {
		b.logger.Info("re-drove unacknowledged messages", "queue", queue, "count", n)
	}

	b.logger.Info("consuming", "queue", queue, "consumer", consumer)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := b.rdb.BRPopLPush(ctx, queue, processing, b.pollTimeout).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("broker receive failed", "queue", queue, "err", err)
			time.Sleep(time.Second)
			continue
		}

		verdict := b.handle(ctx, h, []byte(body))
		if err := b.settle(ctx, queue, processing, body, verdict); err != nil {
			// The body stays on the processing list and is re-driven on the
			// next start of this consumer.
			b.logger.Error("broker settle failed", "queue", queue, "verdict", verdict.String(), "err", err)
		}
	}
}

// handle invokes the handler, converting a panic into RejectDrop so one bad
// message cannot wedge the loop.
func (b *Broker) handle(ctx context.Context, h HandlerFunc, body []byte) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic", "panic", r)
			v = RejectDrop
		}
	}()
	return h(ctx, body)
}

func (b *Broker) settle(ctx context.Context, queue, processing, body string, verdict Verdict) error {
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, processing, 1, body)
	switch verdict {
	case RejectRequeue:
		pipe.LPush(ctx, queue, body)
	case RejectDrop:
		pipe.LPush(ctx, DeadKey(queue), body)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// redrive moves every leftover body from a processing list back onto its
// source queue.
func (b *Broker) redrive(ctx context.Context, queue, processing string) (int, error) {
	moved := 0
	for {
		_, err := b.rdb.RPopLPush(ctx, processing, queue).Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// QueueLength reports how many messages are waiting on a queue.
func (b *Broker) QueueLength(ctx context.Context, queue string) (int64, error) {
	n, err := b.rdb.LLen(ctx, queue).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("LLEN %s: %w", queue, err)
	}
	return n, nil
}

// DeadLength reports how many messages were parked on a queue's dead list.
func (b *Broker) DeadLength(ctx context.Context, queue string) (int64, error) {
	return b.QueueLength(ctx, DeadKey(queue))
}

// PeekDead returns up to limit bodies from a queue's dead list, newest first,
// without removing them.
func (b *Broker) PeekDead(ctx context.Context, queue string, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	vals, err := b.rdb.LRange(ctx, DeadKey(queue), 0, limit-1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("LRANGE %s: %w", DeadKey(queue), err)
	}
	return vals, nil
}
