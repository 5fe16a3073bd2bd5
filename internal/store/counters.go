package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/juneau-ai/loop-relay/internal/queue"
)

// CounterStore holds the current chat_id per phone number in a KV bucket.
// Advances use compare-and-swap so concurrent new-chat markers for the same
// phone cannot lose an increment; the counter only ever moves forward.
type CounterStore struct {
	kv jetstream.KeyValue
}

// NewCounterStore opens (or creates) the counter bucket.
func NewCounterStore(ctx context.Context, conn *queue.Conn, bucket string) (*CounterStore, error) {
	js := conn.JetStream()

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Current chat_id per phone number",
			History:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return &CounterStore{kv: kv}, nil
}

func counterKey(phone int64) string {
	return strconv.FormatInt(phone, 10)
}

// Current returns the chat_id in use for phone, defaulting to 0 on first access.
func (s *CounterStore) Current(ctx context.Context, phone int64) (int64, error) {
	entry, err := s.kv.Get(ctx, counterKey(phone))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	value, err := strconv.ParseInt(string(entry.Value()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter for phone %d: %w", phone, err)
	}

	return value, nil
}

// Next increments and persists the counter for phone, returning the new value.
func (s *CounterStore) Next(ctx context.Context, phone int64) (int64, error) {
	key := counterKey(phone)

	// Bounded CAS loop; a handful of retries covers concurrent markers for the
	// same phone without spinning on a persistent store failure.
	var lastErr error
	for attempt := 0; attempt < 8; attempt++ {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				// First marker for this phone: 0 -> 1
				if _, err := s.kv.Create(ctx, key, []byte("1")); err != nil {
					if errors.Is(err, jetstream.ErrKeyExists) {
						continue // lost the race, retry with the existing entry
					}
					return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
				}
				return 1, nil
			}
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		current, err := strconv.ParseInt(string(entry.Value()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter for phone %d: %w", phone, err)
		}

		next := current + 1
		_, err = s.kv.Update(ctx, key, []byte(strconv.FormatInt(next, 10)), entry.Revision())
		if err == nil {
			return next, nil
		}
		lastErr = err // revision moved underneath us, retry
	}

	return 0, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
