// Package alert routes decoded webhook events by alert type.
package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/pkg/logger"
	"github.com/juneau-ai/loop-relay/pkg/metrics"
)

// Type is the webhook alert type.
type Type string

const (
	TypeMessageInbound  Type = "message_inbound"
	TypeMessageSent     Type = "message_sent"
	TypeMessageFailed   Type = "message_failed"
	TypeMessageReaction Type = "message_reaction"
	TypeGroupCreated    Type = "group_created"

	// TypeUnrecognized is the explicit variant for alert types this relay
	// does not know; unknown payloads never fall through silently.
	TypeUnrecognized Type = "unrecognized"
)

// ParseType maps a payload alert_type string to a known variant.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeMessageInbound, TypeMessageSent, TypeMessageFailed,
		TypeMessageReaction, TypeGroupCreated:
		return Type(s)
	default:
		return TypeUnrecognized
	}
}

// Augmentation is the optional response body a dispatch can hand back to the
// gateway, e.g. {"read": true} acknowledging a reaction.
type Augmentation map[string]any

// InboundHandler runs the reply pipeline for a message_inbound event.
type InboundHandler interface {
	HandleInbound(ctx context.Context, event *model.WebhookEvent) error
}

// Dispatcher switches on the alert type of a decoded webhook event. Only
// message_inbound does real work; every other variant is log-only.
type Dispatcher struct {
	inbound InboundHandler
	logger  *logger.Logger
}

// NewDispatcher creates a dispatcher backed by the given inbound handler.
func NewDispatcher(inbound InboundHandler, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		inbound: inbound,
		logger:  log,
	}
}

// Dispatch routes one event. An error from the inbound pipeline propagates so
// the queue's redelivery performs the retry; no other variant can fail.
func (d *Dispatcher) Dispatch(ctx context.Context, event *model.WebhookEvent) (Augmentation, error) {
	alertType := ParseType(event.AlertType)
	metrics.DispatchesTotal.WithLabelValues(string(alertType)).Inc()

	log := d.logger.With(
		zap.String("alert_type", event.AlertType),
		zap.String("message_id", event.MessageID),
	)

	switch alertType {
	case TypeMessageInbound:
		log.Info("inbound message received", zap.String("recipient", event.Recipient))
		if err := d.inbound.HandleInbound(ctx, event); err != nil {
			return nil, fmt.Errorf("inbound pipeline failed: %w", err)
		}
		return Augmentation{}, nil

	case TypeMessageSent:
		if event.Success {
			log.Info("message delivered")
		} else {
			log.Warn("message not delivered")
		}
		return Augmentation{}, nil

	case TypeMessageFailed:
		log.Error("message failed", zap.Int("error_code", event.ErrorCode))
		return Augmentation{}, nil

	case TypeMessageReaction:
		log.Info("reaction received", zap.String("reaction", event.Reaction))
		return Augmentation{"read": true}, nil

	case TypeGroupCreated:
		name := "Unnamed Group"
		if event.Group != nil && event.Group.Name != "" {
			name = event.Group.Name
		}
		log.Info("added to group", zap.String("group", name))
		return Augmentation{}, nil

	default:
		log.Info("unrecognized alert type, ignoring")
		return Augmentation{}, nil
	}
}

// HandleQueueMessage adapts Dispatch to the inbound queue handler contract.
func (d *Dispatcher) HandleQueueMessage(ctx context.Context, body []byte) error {
	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	_, err := d.Dispatch(ctx, &event)
	return err
}
