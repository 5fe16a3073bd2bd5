// Package gateway is the HTTP client for the Loop Message send API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/pkg/logger"
	"github.com/juneau-ai/loop-relay/pkg/metrics"
)

const sendPath = "/api/v1/message/send/"

// SendResult is the outcome of one send. Transport failures are reported
// here as data, never as a returned error, so a batch of independent sends is
// not aborted by one failure.
type SendResult struct {
	OK         bool           `json:"ok"`
	StatusCode int            `json:"status_code,omitempty"`
	Response   map[string]any `json:"response,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Config holds gateway credentials and endpoint.
type Config struct {
	BaseURL   string
	AuthKey   string
	SecretKey string
}

// Client sends messages through the external gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a gateway client.
func NewClient(cfg Config, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log,
	}
}

// Payload builds the HTTP body for a reply: the always-required fields plus
// only the optional fields that are set. Nulls present in the queued
// representation are dropped here.
func Payload(reply *model.OutboundReply) map[string]any {
	service := reply.Service
	if service == "" {
		service = model.DefaultService
	}

	payload := map[string]any{
		"recipient":   reply.Recipient,
		"text":        reply.Text,
		"sender_name": reply.SenderName,
		"service":     service,
	}

	if len(reply.Attachments) > 0 {
		payload["attachments"] = reply.Attachments
	}
	if reply.Timeout != nil {
		payload["timeout"] = *reply.Timeout
	}
	if reply.Passthrough != nil {
		payload["passthrough"] = *reply.Passthrough
	}
	if reply.StatusCallback != nil {
		payload["status_callback"] = *reply.StatusCallback
	}
	if reply.StatusCallbackHeader != nil {
		payload["status_callback_header"] = *reply.StatusCallbackHeader
	}
	if reply.ReplyToID != nil {
		payload["reply_to_id"] = *reply.ReplyToID
	}
	if reply.Subject != nil {
		payload["subject"] = *reply.Subject
	}
	if reply.Effect != nil {
		payload["effect"] = *reply.Effect
	}

	return payload
}

// Send posts one reply to the gateway's send endpoint.
func (c *Client) Send(ctx context.Context, reply *model.OutboundReply) SendResult {
	body, err := json.Marshal(Payload(reply))
	if err != nil {
		return c.failure(fmt.Errorf("failed to marshal payload: %w", err))
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + sendPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return c.failure(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Authorization", c.cfg.AuthKey)
	req.Header.Set("Loop-Secret-Key", c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.failure(fmt.Errorf("send request failed: %w", err))
	}
	defer resp.Body.Close()

	var parsed map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&parsed)

	metrics.GatewaySendsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	c.logger.Info("gateway send completed",
		zap.String("recipient", reply.Recipient),
		zap.Int("status", resp.StatusCode),
	)

	return SendResult{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Response:   parsed,
	}
}

func (c *Client) failure(err error) SendResult {
	metrics.GatewaySendsTotal.WithLabelValues("transport_error").Inc()
	c.logger.Error("gateway send failed", zap.Error(err))
	return SendResult{OK: false, Error: err.Error()}
}
