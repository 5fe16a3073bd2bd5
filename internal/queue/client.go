package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/juneau-ai/loop-relay/pkg/logger"
	"github.com/juneau-ai/loop-relay/pkg/metrics"
)

// ErrNotConfigured is returned when a queue client is missing its stream or
// subject name.
var ErrNotConfigured = errors.New("queue stream or subject not configured")

// Handler processes one queue message. A non-nil error leaves the message
// unacknowledged so the broker redelivers it; delivery is at-least-once.
type Handler func(ctx context.Context, body []byte) error

// Client is a queue client bound to a single stream and subject. Both the
// inbound webhook queue and the outbound reply queue are instances of it.
type Client struct {
	conn    *Conn
	stream  string
	subject string
	logger  *logger.Logger
}

// New creates a queue client for the given stream and subject.
func New(conn *Conn, stream, subject string, log *logger.Logger) *Client {
	return &Client{
		conn:    conn,
		stream:  stream,
		subject: subject,
		logger:  log,
	}
}

// EnsureStream ensures the backing stream exists.
func (c *Client) EnsureStream(ctx context.Context) error {
	if c.stream == "" || c.subject == "" {
		return ErrNotConfigured
	}

	js := c.conn.JetStream()

	_, err := js.Stream(ctx, c.stream)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        c.stream,
		Subjects:    []string{c.subject},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Relay work queue",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.stream, err)
	}

	return nil
}

// Enqueue publishes one message and returns the queue-assigned message id.
func (c *Client) Enqueue(ctx context.Context, body []byte) (string, error) {
	if c.stream == "" || c.subject == "" {
		return "", ErrNotConfigured
	}

	ack, err := c.conn.JetStream().Publish(ctx, c.subject, body)
	if err != nil {
		metrics.EnqueuesTotal.WithLabelValues(c.stream, "error").Inc()
		return "", fmt.Errorf("failed to publish to %s: %w", c.subject, err)
	}

	metrics.EnqueuesTotal.WithLabelValues(c.stream, "success").Inc()
	return strconv.FormatUint(ack.Sequence, 10), nil
}

// Consume fetches messages and runs the handler until the context is
// cancelled. maxConcurrency bounds how many deliveries may be in flight at
// once. Handler failures Nak the message so the broker's redelivery policy
// performs the retry; no retry loop lives here.
func (c *Client) Consume(ctx context.Context, durable string, maxConcurrency int, handler Handler) error {
	if c.stream == "" || c.subject == "" {
		return ErrNotConfigured
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	js := c.conn.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, c.stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: c.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxAckPending: maxConcurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	sem := make(chan struct{}, maxConcurrency)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := consumer.Fetch(maxConcurrency, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.logger.Warn("fetch failed", zap.String("stream", c.stream), zap.Error(err))
			continue
		}

		for msg := range batch.Messages() {
			sem <- struct{}{}
			go func(msg jetstream.Msg) {
				defer func() { <-sem }()

				metrics.ConsumerInFlight.WithLabelValues(c.stream).Inc()
				defer metrics.ConsumerInFlight.WithLabelValues(c.stream).Dec()

				if err := handler(ctx, msg.Data()); err != nil {
					c.logger.Error("handler failed, message will be redelivered",
						zap.String("stream", c.stream),
						zap.Error(err),
					)
					_ = msg.Nak()
					return
				}

				_ = msg.Ack()
			}(msg)
		}
	}
}
