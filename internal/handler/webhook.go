// Package handler provides HTTP handlers for the webhook server.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/juneau-ai/loop-relay/internal/relay"
	"github.com/juneau-ai/loop-relay/pkg/logger"
	"github.com/juneau-ai/loop-relay/pkg/metrics"
)

// maxBodyBytes bounds the accepted webhook payload size.
const maxBodyBytes = 1 << 20

// WebhookHandler receives gateway webhooks and forwards them onto the
// inbound queue. No alert-type interpretation happens here; that belongs to
// the queue consumer.
type WebhookHandler struct {
	inbound relay.Publisher
	logger  *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(inbound relay.Publisher, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		inbound: inbound,
		logger:  log,
	}
}

// Root handles GET /. The gateway polls this for liveness.
func (h *WebhookHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Webhook server is running",
	})
}

// Receive handles POST /loop: validate the body is JSON and forward it
// verbatim onto the inbound queue. Exactly one enqueue per valid request.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("read_error").Inc()
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if !json.Valid(body) {
		metrics.WebhooksTotal.WithLabelValues("invalid_json").Inc()
		h.logger.Warn("webhook payload is not valid JSON")
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	messageID, err := h.inbound.Enqueue(r.Context(), body)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("enqueue_error").Inc()
		h.logger.Error("failed to enqueue webhook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to send message to queue")
		return
	}

	metrics.WebhooksTotal.WithLabelValues("accepted").Inc()
	h.logger.Info("webhook enqueued", zap.String("message_id", messageID))

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Message sent to queue: " + messageID,
	})
}
