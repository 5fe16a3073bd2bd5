package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/pkg/logger"
)

func intptr(i int) *int       { return &i }
func strptr(s string) *string { return &s }

func TestPayloadOmitsNulls(t *testing.T) {
	payload := Payload(&model.OutboundReply{
		Recipient:  "+15551234567",
		Text:       "hello",
		SenderName: "Bot",
		Service:    "imessage",
	})

	assert.Equal(t, map[string]any{
		"recipient":   "+15551234567",
		"text":        "hello",
		"sender_name": "Bot",
		"service":     "imessage",
	}, payload)
}

func TestPayloadCarriesSetOptionals(t *testing.T) {
	payload := Payload(&model.OutboundReply{
		Recipient:   "+15551234567",
		Text:        "hello",
		SenderName:  "Bot",
		Timeout:     intptr(30),
		Effect:      strptr("confetti"),
		Attachments: []string{"https://a.test/1"},
	})

	assert.Equal(t, 30, payload["timeout"])
	assert.Equal(t, "confetti", payload["effect"])
	assert.Equal(t, []string{"https://a.test/1"}, payload["attachments"])
	assert.Equal(t, "imessage", payload["service"], "service always defaults")
	assert.NotContains(t, payload, "subject")
	assert.NotContains(t, payload, "reply_to_id")
}

func TestSendPostsWithHeaders(t *testing.T) {
	var gotPath, gotAuth, gotSecret, gotContentType string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotSecret = r.Header.Get("Loop-Secret-Key")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message_id":"abc-123","success":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:   server.URL,
		AuthKey:   "auth-key",
		SecretKey: "secret-key",
	}, server.Client(), logger.NewNop())

	result := client.Send(context.Background(), &model.OutboundReply{
		Recipient:  "+15551234567",
		Text:       "hello",
		SenderName: "Bot",
	})

	assert.True(t, result.OK)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "abc-123", result.Response["message_id"])

	assert.Equal(t, "/api/v1/message/send/", gotPath)
	assert.Equal(t, "auth-key", gotAuth)
	assert.Equal(t, "secret-key", gotSecret)
	assert.Equal(t, "application/json", gotContentType)

	require.NotNil(t, gotBody)
	assert.Equal(t, "+15551234567", gotBody["recipient"])
	assert.NotContains(t, gotBody, "timeout", "unset optionals never reach the wire")
}

func TestSendNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, server.Client(), logger.NewNop())

	result := client.Send(context.Background(), &model.OutboundReply{Recipient: "x", Text: "y", SenderName: "z"})

	assert.False(t, result.OK)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, "invalid recipient", result.Response["error"])
}

func TestSendTransportFailureReturnsResultNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(Config{BaseURL: server.URL}, nil, logger.NewNop())

	result := client.Send(context.Background(), &model.OutboundReply{Recipient: "x", Text: "y", SenderName: "z"})

	assert.False(t, result.OK)
	assert.Zero(t, result.StatusCode)
	assert.NotEmpty(t, result.Error)
}
