// Package config provides environment configuration for the relay.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Webhook authentication
	LoopBearerToken string

	// Loop Message gateway
	GatewayURL     string
	LoopAuthKey    string
	LoopSecretKey  string
	LoopSenderName string

	// Queues
	InboundStream  string
	InboundSubject string

	OutboundStream  string
	OutboundSubject string

	InboundMaxConcurrency  int
	OutboundMaxConcurrency int

	// Conversation store
	ConversationStream string
	CounterBucket      string
	AttachmentBucket   string
	AttachmentBaseURL  string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultModel    string
	MaxPromptTokens int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Webhook auth
		LoopBearerToken: getEnv("LOOP_BEARER_TOKEN", ""),

		// Gateway
		GatewayURL:     getEnv("GATEWAY_URL", "https://server.loopmessage.com"),
		LoopAuthKey:    getEnv("LOOP_AUTH_KEY", ""),
		LoopSecretKey:  getEnv("LOOP_SECRET_KEY", ""),
		LoopSenderName: getEnv("LOOP_SENDER_NAME", "Loop Message Sender"),

		// Queues
		InboundStream:  getEnv("INBOUND_STREAM", "RELAY_INBOUND"),
		InboundSubject: getEnv("INBOUND_SUBJECT", "relay.inbound"),

		OutboundStream:  getEnv("OUTBOUND_STREAM", "RELAY_OUTBOUND"),
		OutboundSubject: getEnv("OUTBOUND_SUBJECT", "relay.outbound"),

		InboundMaxConcurrency:  getIntEnv("INBOUND_MAX_CONCURRENCY", 4),
		OutboundMaxConcurrency: getIntEnv("OUTBOUND_MAX_CONCURRENCY", 4),

		// Conversation store
		ConversationStream: getEnv("CONVERSATION_STREAM", "CONVERSATIONS"),
		CounterBucket:      getEnv("COUNTER_BUCKET", "CHAT_COUNTERS"),
		AttachmentBucket:   getEnv("ATTACHMENT_BUCKET", "ATTACHMENTS"),
		AttachmentBaseURL:  getEnv("ATTACHMENT_BASE_URL", "https://attachments.juneau.app"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", ""),
		MaxPromptTokens: getIntEnv("MAX_PROMPT_TOKENS", 16000),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
