package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juneau-ai/loop-relay/internal/llm"
	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/pkg/logger"
)

type fakeLog struct {
	logs map[model.ConversationKey][]model.MessageRecord
	err  error
}

func newFakeLog() *fakeLog {
	return &fakeLog{logs: make(map[model.ConversationKey][]model.MessageRecord)}
}

func (f *fakeLog) Append(ctx context.Context, key model.ConversationKey, record model.MessageRecord) error {
	if f.err != nil {
		return f.err
	}
	f.logs[key] = append(f.logs[key], record)
	return nil
}

func (f *fakeLog) History(ctx context.Context, key model.ConversationKey) ([]model.MessageRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.logs[key], nil
}

type fakeCounters struct {
	counts map[int64]int64
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: make(map[int64]int64)}
}

func (f *fakeCounters) Current(ctx context.Context, phone int64) (int64, error) {
	return f.counts[phone], nil
}

func (f *fakeCounters) Next(ctx context.Context, phone int64) (int64, error) {
	f.counts[phone]++
	return f.counts[phone], nil
}

type fakeAttachments struct {
	stored [][]byte
}

func (f *fakeAttachments) Store(ctx context.Context, data []byte) (string, error) {
	f.stored = append(f.stored, data)
	return fmt.Sprintf("https://attachments.test/%d", len(f.stored)), nil
}

type fakePublisher struct {
	bodies [][]byte
	err    error
}

func (f *fakePublisher) Enqueue(ctx context.Context, body []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.bodies = append(f.bodies, body)
	return fmt.Sprintf("%d", len(f.bodies)), nil
}

type fakeModel struct {
	reply   string
	err     error
	lastReq *llm.CompletionRequest
}

func (f *fakeModel) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply, Model: "test-model"}, nil
}

func (f *fakeModel) Name() string     { return "fake" }
func (f *fakeModel) Models() []string { return []string{"test-model"} }

type fixture struct {
	svc         *Service
	log         *fakeLog
	counters    *fakeCounters
	attachments *fakeAttachments
	outbound    *fakePublisher
	model       *fakeModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		log:         newFakeLog(),
		counters:    newFakeCounters(),
		attachments: &fakeAttachments{},
		outbound:    &fakePublisher{},
		model:       &fakeModel{reply: "Hi! How can I help?"},
	}
	f.svc = NewService(
		f.log, f.counters, f.attachments, f.outbound, f.model, nil,
		Config{}, logger.NewNop(),
	)
	return f
}

func TestParsePhone(t *testing.T) {
	phone, err := ParsePhone("+15551234567")
	require.NoError(t, err)
	assert.Equal(t, int64(15551234567), phone)

	phone, err = ParsePhone("15551234567")
	require.NoError(t, err)
	assert.Equal(t, int64(15551234567), phone)

	_, err = ParsePhone("")
	assert.ErrorIs(t, err, ErrBadRecipient)

	_, err = ParsePhone("+")
	assert.ErrorIs(t, err, ErrBadRecipient)

	_, err = ParsePhone("user@example.com")
	assert.ErrorIs(t, err, ErrBadRecipient)
}

func TestResolveKeyIdempotentWithoutMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := &model.WebhookEvent{Recipient: "+15551234567", Text: "Hello"}

	first, err := f.svc.ResolveKey(ctx, event)
	require.NoError(t, err)
	second, err := f.svc.ResolveKey(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, model.ConversationKey{Phone: 15551234567, ChatID: 0}, first)
	assert.Equal(t, first, second)
}

func TestResolveKeyMarkerAdvancesCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := f.svc.ResolveKey(ctx, &model.WebhookEvent{Recipient: "+15551234567", Text: NewChatMarker + " new topic"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), key.ChatID)

	key, err = f.svc.ResolveKey(ctx, &model.WebhookEvent{Recipient: "+15551234567", Text: NewChatMarker})
	require.NoError(t, err)
	assert.Equal(t, int64(2), key.ChatID)

	// Non-marker text reuses the advanced counter; it never goes back.
	key, err = f.svc.ResolveKey(ctx, &model.WebhookEvent{Recipient: "+15551234567", Text: "still here"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), key.ChatID)
}

func TestHandleInboundFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleInbound(ctx, &model.WebhookEvent{
		AlertType: "message_inbound",
		Recipient: "+15551234567",
		Text:      "Hello",
		Language:  model.Language{Code: "en"},
	})
	require.NoError(t, err)

	key := model.ConversationKey{Phone: 15551234567, ChatID: 0}
	records := f.log.logs[key]
	require.Len(t, records, 2)
	assert.Equal(t, model.MessageRecord{Text: "Hello", IsHuman: true}, records[0])
	assert.Equal(t, model.MessageRecord{Text: "Hi! How can I help?", IsHuman: false}, records[1])

	// Model saw the one-turn prompt plus the system instruction.
	require.NotNil(t, f.model.lastReq)
	assert.Equal(t, SystemInstruction, f.model.lastReq.System)
	require.Len(t, f.model.lastReq.Messages, 1)
	assert.Equal(t, llm.RoleUser, f.model.lastReq.Messages[0].Role)

	// Exactly one reply enqueued, addressed back to the sender.
	require.Len(t, f.outbound.bodies, 1)
	body := string(f.outbound.bodies[0])
	assert.Contains(t, body, `"recipient":"+15551234567"`)
	assert.Contains(t, body, `"service":"imessage"`)
	assert.Contains(t, body, `"sender_name":"Loop Message Sender"`)
}

func TestHandleInboundNewChatLeavesOldLogUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleInbound(ctx, &model.WebhookEvent{
		Recipient: "+15551234567", Text: "Hello",
	}))

	oldKey := model.ConversationKey{Phone: 15551234567, ChatID: 0}
	oldLen := len(f.log.logs[oldKey])

	require.NoError(t, f.svc.HandleInbound(ctx, &model.WebhookEvent{
		Recipient: "+15551234567", Text: NewChatMarker + " new topic",
	}))

	newKey := model.ConversationKey{Phone: 15551234567, ChatID: 1}
	assert.Len(t, f.log.logs[oldKey], oldLen, "prior chat log must be untouched")
	require.Len(t, f.log.logs[newKey], 2)
	assert.Equal(t, NewChatMarker+" new topic", f.log.logs[newKey][0].Text)
}

func TestHandleInboundAppendOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := model.ConversationKey{Phone: 15551234567, ChatID: 0}

	require.NoError(t, f.svc.HandleInbound(ctx, &model.WebhookEvent{Recipient: "+15551234567", Text: "first"}))
	require.NoError(t, f.svc.HandleInbound(ctx, &model.WebhookEvent{Recipient: "+15551234567", Text: "second"}))

	records := f.log.logs[key]
	require.Len(t, records, 4)
	assert.Equal(t, "first", records[0].Text)
	assert.Equal(t, "second", records[2].Text)
}

func TestHandleInboundModelFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.model.err = errors.New("model unavailable")

	err := f.svc.HandleInbound(context.Background(), &model.WebhookEvent{
		Recipient: "+15551234567", Text: "Hello",
	})

	require.Error(t, err)
	assert.Empty(t, f.outbound.bodies, "no reply may be enqueued on model failure")
}

func TestHandleInboundBadRecipient(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleInbound(context.Background(), &model.WebhookEvent{
		Recipient: "not-a-number", Text: "Hello",
	})

	assert.ErrorIs(t, err, ErrBadRecipient)
}

func TestHandleInboundRelocatesAttachmentURL(t *testing.T) {
	payload := []byte("fake image bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	f := newFixture(t)
	f.svc.httpClient = server.Client()

	require.NoError(t, f.svc.HandleInbound(context.Background(), &model.WebhookEvent{
		Recipient:   "+15551234567",
		Text:        "photo",
		Attachments: []string{server.URL + "/img.png"},
	}))

	require.Len(t, f.attachments.stored, 1)
	assert.Equal(t, payload, f.attachments.stored[0])

	key := model.ConversationKey{Phone: 15551234567, ChatID: 0}
	records := f.log.logs[key]
	require.NotEmpty(t, records)
	assert.True(t, strings.HasPrefix(records[0].Text, "https://attachments.test/"),
		"log must reference the relocated URL, got %q", records[0].Text)
}

func TestHandleInboundAttachmentFetchFailureIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newFixture(t)
	f.svc.httpClient = server.Client()

	err := f.svc.HandleInbound(context.Background(), &model.WebhookEvent{
		Recipient:   "+15551234567",
		Text:        "photo",
		Attachments: []string{server.URL + "/gone.png"},
	})
	require.NoError(t, err)

	key := model.ConversationKey{Phone: 15551234567, ChatID: 0}
	records := f.log.logs[key]
	require.NotEmpty(t, records)
	assert.Equal(t, "", records[0].Text, "failed fetch proceeds with empty text")
	assert.Len(t, f.outbound.bodies, 1, "pipeline still completes")
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/file.png"))
	assert.True(t, IsURL("http://cdn.test/x"))
	assert.False(t, IsURL("Hello"))
	assert.False(t, IsURL("/relative/path"))
	assert.False(t, IsURL("example.com/no-scheme"))
}

func TestEnqueueReplyFailure(t *testing.T) {
	f := newFixture(t)
	f.outbound.err = errors.New("queue down")

	_, err := f.svc.EnqueueReply(context.Background(), &model.OutboundReply{
		Recipient: "+15551234567", Text: "hi", SenderName: "X", Service: "imessage",
	})

	require.Error(t, err)
}
