package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/pkg/logger"
)

type stubInbound struct {
	calls int
	err   error
	last  *model.WebhookEvent
}

func (s *stubInbound) HandleInbound(ctx context.Context, event *model.WebhookEvent) error {
	s.calls++
	s.last = event
	return s.err
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeMessageInbound, ParseType("message_inbound"))
	assert.Equal(t, TypeMessageSent, ParseType("message_sent"))
	assert.Equal(t, TypeMessageFailed, ParseType("message_failed"))
	assert.Equal(t, TypeMessageReaction, ParseType("message_reaction"))
	assert.Equal(t, TypeGroupCreated, ParseType("group_created"))
	assert.Equal(t, TypeUnrecognized, ParseType("conversation_inited"))
	assert.Equal(t, TypeUnrecognized, ParseType(""))
}

func TestDispatchInboundRunsPipeline(t *testing.T) {
	inbound := &stubInbound{}
	d := NewDispatcher(inbound, logger.NewNop())

	aug, err := d.Dispatch(context.Background(), &model.WebhookEvent{
		AlertType: "message_inbound",
		Recipient: "+15551234567",
		Text:      "Hello",
	})

	require.NoError(t, err)
	assert.Equal(t, Augmentation{}, aug)
	assert.Equal(t, 1, inbound.calls)
	assert.Equal(t, "+15551234567", inbound.last.Recipient)
}

func TestDispatchInboundPropagatesError(t *testing.T) {
	inbound := &stubInbound{err: errors.New("store down")}
	d := NewDispatcher(inbound, logger.NewNop())

	_, err := d.Dispatch(context.Background(), &model.WebhookEvent{
		AlertType: "message_inbound",
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "store down")
}

func TestDispatchReactionReturnsReadAugmentation(t *testing.T) {
	inbound := &stubInbound{}
	d := NewDispatcher(inbound, logger.NewNop())

	aug, err := d.Dispatch(context.Background(), &model.WebhookEvent{
		AlertType: "message_reaction",
		Reaction:  "love",
	})

	require.NoError(t, err)
	assert.Equal(t, Augmentation{"read": true}, aug)
	assert.Zero(t, inbound.calls, "reactions must not run the pipeline")
}

func TestDispatchLogOnlyVariants(t *testing.T) {
	for _, alertType := range []string{"message_sent", "message_failed", "group_created", "something_new"} {
		inbound := &stubInbound{err: errors.New("should not be called")}
		d := NewDispatcher(inbound, logger.NewNop())

		aug, err := d.Dispatch(context.Background(), &model.WebhookEvent{AlertType: alertType})

		require.NoError(t, err, alertType)
		assert.Equal(t, Augmentation{}, aug, alertType)
		assert.Zero(t, inbound.calls, alertType)
	}
}

func TestHandleQueueMessage(t *testing.T) {
	inbound := &stubInbound{}
	d := NewDispatcher(inbound, logger.NewNop())

	err := d.HandleQueueMessage(context.Background(), []byte(`{"alert_type":"message_inbound","recipient":"+15551234567","text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, inbound.calls)

	err = d.HandleQueueMessage(context.Background(), []byte(`{not json`))
	require.Error(t, err)
	assert.Equal(t, 1, inbound.calls)
}
