// Package model defines data structures for the message relay.
package model

// Language carries the sender's language metadata from the webhook payload.
type Language struct {
	Code string `json:"code"`
}

// Group carries group metadata for group_created alerts.
type Group struct {
	GroupID string `json:"group_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// WebhookEvent is the raw inbound webhook payload. It is forwarded onto the
// inbound queue verbatim and decoded again by the consumer; fields here cover
// every alert type the gateway emits.
type WebhookEvent struct {
	AlertType   string   `json:"alert_type"`
	Recipient   string   `json:"recipient"`
	Text        string   `json:"text"`
	MessageID   string   `json:"message_id"`
	MessageType string   `json:"message_type,omitempty"`
	SenderName  string   `json:"sender_name,omitempty"`
	Language    Language `json:"language"`
	Attachments []string `json:"attachments,omitempty"`

	// message_sent / message_failed
	Success   bool `json:"success,omitempty"`
	ErrorCode int  `json:"error_code,omitempty"`

	// message_reaction
	Reaction string `json:"reaction,omitempty"`

	// group_created
	Group *Group `json:"group,omitempty"`

	WebhookID  string `json:"webhook_id,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}
