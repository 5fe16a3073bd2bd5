package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/juneau-ai/loop-relay/internal/gateway"
	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/pkg/logger"
)

// GatewaySender sends one reply through the external messaging gateway.
type GatewaySender interface {
	Send(ctx context.Context, reply *model.OutboundReply) gateway.SendResult
}

// Sender drains the outbound queue into the messaging gateway.
type Sender struct {
	gateway GatewaySender
	logger  *logger.Logger
}

// NewSender creates an outbound sender.
func NewSender(gw GatewaySender, log *logger.Logger) *Sender {
	return &Sender{
		gateway: gw,
		logger:  log,
	}
}

// HandleQueueMessage sends one queued reply. A send failure is logged and
// consumed, not returned: the gateway client reports failures as data, and
// redelivering a possibly-delivered message would double-text the recipient.
// Only an undecodable payload is an error.
func (s *Sender) HandleQueueMessage(ctx context.Context, body []byte) error {
	var reply model.OutboundReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("failed to decode outbound reply: %w", err)
	}

	result := s.gateway.Send(ctx, &reply)
	if !result.OK {
		s.logger.Error("outbound send failed",
			zap.String("recipient", reply.Recipient),
			zap.Int("status", result.StatusCode),
			zap.String("error", result.Error),
		)
	}

	return nil
}
