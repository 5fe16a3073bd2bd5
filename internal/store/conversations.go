// Package store persists conversation state on NATS JetStream: an append-only
// message log per conversation key, a chat counter per phone number, and an
// object store for relocated attachments.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/internal/queue"
	"github.com/juneau-ai/loop-relay/pkg/metrics"
)

const (
	// SubjectPrefix is the prefix for all conversation log subjects.
	SubjectPrefix = "convo"

	historyBatchSize = 100
)

var (
	// ErrNotFound is returned when a conversation key has no log.
	ErrNotFound = errors.New("conversation not found")

	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("conversation store unavailable")
)

// ConversationStore is the append-only message log keyed by (phone, chat_id).
// Appends publish to a per-key subject, so ordering within one key comes from
// the stream itself; no locking happens in this process.
type ConversationStore struct {
	conn   *queue.Conn
	stream string
}

// NewConversationStore creates a conversation store over the given stream.
func NewConversationStore(conn *queue.Conn, stream string) *ConversationStore {
	return &ConversationStore{conn: conn, stream: stream}
}

// KeySubject returns the log subject for a conversation key.
func (s *ConversationStore) KeySubject(key model.ConversationKey) string {
	return fmt.Sprintf("%s.%d.%d", SubjectPrefix, key.Phone, key.ChatID)
}

// EnsureStream ensures the conversations stream exists with proper configuration.
func (s *ConversationStore) EnsureStream(ctx context.Context) error {
	js := s.conn.JetStream()

	_, err := js.Stream(ctx, s.stream)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        s.stream,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Per-conversation message logs",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Append appends one record to the log for key, creating the log if absent.
func (s *ConversationStore) Append(ctx context.Context, key model.ConversationKey, record model.MessageRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.conn.JetStream().Publish(ctx, s.KeySubject(key), data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	role := "assistant"
	if record.IsHuman {
		role = "human"
	}
	metrics.AppendsTotal.WithLabelValues(role).Inc()

	return nil
}

// History returns the full ordered log for key, oldest first. A key that has
// never been written returns an empty history, not an error.
func (s *ConversationStore) History(ctx context.Context, key model.ConversationKey) ([]model.MessageRecord, error) {
	js := s.conn.JetStream()

	consumer, err := js.CreateConsumer(ctx, s.stream, jetstream.ConsumerConfig{
		FilterSubject: s.KeySubject(key),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var records []model.MessageRecord

	for {
		batch, err := consumer.Fetch(historyBatchSize, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		count := 0
		for msg := range batch.Messages() {
			var record model.MessageRecord
			if err := json.Unmarshal(msg.Data(), &record); err != nil {
				continue
			}
			records = append(records, record)
			count++
		}

		if batch.Error() != nil && !errors.Is(batch.Error(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, batch.Error())
		}

		if count < historyBatchSize {
			break
		}
	}

	return records, nil
}
