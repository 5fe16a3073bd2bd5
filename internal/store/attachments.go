package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/juneau-ai/loop-relay/internal/queue"
)

// AttachmentStore relocates attachment bytes into an object store bucket.
// Keys are content-derived, so re-storing the same bytes is a no-op address.
type AttachmentStore struct {
	obs     jetstream.ObjectStore
	baseURL string
}

// NewAttachmentStore opens (or creates) the attachment bucket.
func NewAttachmentStore(ctx context.Context, conn *queue.Conn, bucket, baseURL string) (*AttachmentStore, error) {
	js := conn.JetStream()

	obs, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		obs, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Relocated message attachments",
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return &AttachmentStore{
		obs:     obs,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Store writes data under a short content hash and returns the durable URL
// the conversation log should reference instead of the original link.
func (s *AttachmentStore) Store(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])[:8]

	if _, err := s.obs.PutBytes(ctx, key, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return s.baseURL + "/" + key, nil
}
