// Package relay implements the inbound message pipeline: conversation
// addressing, attachment relocation, history-backed model completion, and
// reply dispatch onto the outbound queue.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"unicode"

	"go.uber.org/zap"

	"github.com/juneau-ai/loop-relay/internal/llm"
	"github.com/juneau-ai/loop-relay/internal/model"
	"github.com/juneau-ai/loop-relay/internal/prompt"
	"github.com/juneau-ai/loop-relay/pkg/logger"
	"github.com/juneau-ai/loop-relay/pkg/metrics"
)

// NewChatMarker is the leading glyph that starts a fresh conversation thread.
const NewChatMarker = "✨"

// SystemInstruction is the fixed instruction at the front of every prompt.
const SystemInstruction = "As my AI assistant, answer my texts succinctly and try to match my tone.\n"

// DefaultSenderName is used when the webhook carries no sender name.
const DefaultSenderName = "Loop Message Sender"

// ErrBadRecipient is returned when the webhook recipient cannot be parsed
// into a phone number.
var ErrBadRecipient = errors.New("recipient is missing or not a phone number")

// ConversationLog is the append-only message log accessor.
type ConversationLog interface {
	Append(ctx context.Context, key model.ConversationKey, record model.MessageRecord) error
	History(ctx context.Context, key model.ConversationKey) ([]model.MessageRecord, error)
}

// ChatCounters tracks the current chat_id per phone number.
type ChatCounters interface {
	Current(ctx context.Context, phone int64) (int64, error)
	Next(ctx context.Context, phone int64) (int64, error)
}

// Attachments stores attachment bytes under a durable address.
type Attachments interface {
	Store(ctx context.Context, data []byte) (string, error)
}

// Publisher enqueues one message and returns the queue-assigned id.
type Publisher interface {
	Enqueue(ctx context.Context, body []byte) (string, error)
}

// Config carries the pipeline's tunables.
type Config struct {
	Model           string
	MaxPromptTokens int
	SenderName      string
}

// Service runs the reply pipeline for inbound messages.
type Service struct {
	log         ConversationLog
	counters    ChatCounters
	attachments Attachments
	outbound    Publisher
	model       llm.Client
	httpClient  *http.Client
	cfg         Config
	logger      *logger.Logger
}

// NewService creates the pipeline service.
func NewService(
	log ConversationLog,
	counters ChatCounters,
	attachments Attachments,
	outbound Publisher,
	modelClient llm.Client,
	httpClient *http.Client,
	cfg Config,
	lg *logger.Logger,
) *Service {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = 16000
	}
	if cfg.SenderName == "" {
		cfg.SenderName = DefaultSenderName
	}
	return &Service{
		log:         log,
		counters:    counters,
		attachments: attachments,
		outbound:    outbound,
		model:       modelClient,
		httpClient:  httpClient,
		cfg:         cfg,
		logger:      lg,
	}
}

// ResolveKey derives the conversation key for an event: the phone number
// parsed from the recipient, and the chat counter for that phone. A text
// starting with the new-chat marker advances and persists the counter before
// use; the counter never moves backward.
func (s *Service) ResolveKey(ctx context.Context, event *model.WebhookEvent) (model.ConversationKey, error) {
	phone, err := ParsePhone(event.Recipient)
	if err != nil {
		return model.ConversationKey{}, err
	}

	var chatID int64
	if hasNewChatMarker(event.Text) {
		chatID, err = s.counters.Next(ctx, phone)
	} else {
		chatID, err = s.counters.Current(ctx, phone)
	}
	if err != nil {
		return model.ConversationKey{}, fmt.Errorf("failed to resolve chat counter: %w", err)
	}

	return model.ConversationKey{Phone: phone, ChatID: chatID}, nil
}

// ParsePhone strips a single leading non-digit prefix rune (the country-code
// marker, e.g. "+") and parses the remaining digits: "+15551234567" -> 15551234567.
func ParsePhone(recipient string) (int64, error) {
	if recipient == "" {
		return 0, ErrBadRecipient
	}

	runes := []rune(recipient)
	if !unicode.IsDigit(runes[0]) {
		runes = runes[1:]
	}
	if len(runes) == 0 {
		return 0, ErrBadRecipient
	}

	phone, err := strconv.ParseInt(string(runes), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadRecipient, recipient)
	}

	return phone, nil
}

func hasNewChatMarker(text string) bool {
	return len(text) >= len(NewChatMarker) && text[:len(NewChatMarker)] == NewChatMarker
}

// HandleInbound runs the full pipeline for one message_inbound event: resolve
// the key, persist the human turn, complete against the trimmed history,
// persist the assistant turn, and enqueue the reply. Any error propagates so
// the queue redelivers the event.
func (s *Service) HandleInbound(ctx context.Context, event *model.WebhookEvent) error {
	key, err := s.ResolveKey(ctx, event)
	if err != nil {
		return err
	}

	log := s.logger.WithConversation(key.Phone, key.ChatID)

	text := event.Text
	if len(event.Attachments) > 0 {
		text = event.Attachments[0]
	}
	if IsURL(text) {
		text = s.relocateAttachment(ctx, text, log)
	}

	if err := s.log.Append(ctx, key, model.MessageRecord{Text: text, IsHuman: true}); err != nil {
		return fmt.Errorf("failed to append human record: %w", err)
	}

	history, err := s.log.History(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	turns := prompt.Trim(prompt.Build(history), s.cfg.MaxPromptTokens)

	resp, err := s.model.Complete(ctx, &llm.CompletionRequest{
		Model:    s.cfg.Model,
		System:   SystemInstruction,
		Messages: turns,
	})
	if err != nil {
		metrics.RecordModelCall(s.cfg.Model, "error", 0, 0, 0)
		return fmt.Errorf("model completion failed: %w", err)
	}
	metrics.RecordModelCall(resp.Model, "success", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)

	if err := s.log.Append(ctx, key, model.MessageRecord{Text: resp.Content, IsHuman: false}); err != nil {
		return fmt.Errorf("failed to append assistant record: %w", err)
	}

	senderName := event.SenderName
	if senderName == "" {
		senderName = s.cfg.SenderName
	}

	messageID, err := s.EnqueueReply(ctx, &model.OutboundReply{
		Recipient:  event.Recipient,
		Text:       resp.Content,
		SenderName: senderName,
		Service:    model.DefaultService,
	})
	if err != nil {
		return err
	}

	log.Info("reply enqueued",
		zap.String("outbound_message_id", messageID),
		zap.Int("history_turns", len(turns)),
	)

	return nil
}

// EnqueueReply serializes a reply onto the outbound queue, nulls and all.
func (s *Service) EnqueueReply(ctx context.Context, reply *model.OutboundReply) (string, error) {
	body, err := json.Marshal(reply)
	if err != nil {
		return "", fmt.Errorf("failed to marshal reply: %w", err)
	}

	messageID, err := s.outbound.Enqueue(ctx, body)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue reply: %w", err)
	}

	return messageID, nil
}

// IsURL reports whether s parses as a URL with both a scheme and a host.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// relocateAttachment fetches the referenced resource and re-uploads it into
// owned storage, so the log never depends on an expiring external link. Fetch
// failures are non-fatal: the conversation proceeds with an empty text.
func (s *Service) relocateAttachment(ctx context.Context, link string, log *logger.Logger) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		log.Warn("bad attachment URL", zap.String("url", link), zap.Error(err))
		return ""
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Warn("failed to fetch attachment", zap.String("url", link), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("attachment fetch returned non-OK status",
			zap.String("url", link),
			zap.Int("status", resp.StatusCode),
		)
		return ""
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("failed to read attachment body", zap.String("url", link), zap.Error(err))
		return ""
	}

	stored, err := s.attachments.Store(ctx, data)
	if err != nil {
		log.Warn("failed to store attachment", zap.Error(err))
		return ""
	}

	return stored
}
