package model

// DefaultService is the messaging service used when a reply does not name one.
const DefaultService = "imessage"

// OutboundReply is the payload enqueued for the outbound sender. The queued
// JSON carries every field, nulls included; the gateway client strips nulls
// when it builds the final HTTP body.
type OutboundReply struct {
	Recipient            string   `json:"recipient"`
	Text                 string   `json:"text"`
	SenderName           string   `json:"sender_name"`
	Attachments          []string `json:"attachments"`
	Timeout              *int     `json:"timeout"`
	Passthrough          *string  `json:"passthrough"`
	StatusCallback       *string  `json:"status_callback"`
	StatusCallbackHeader *string  `json:"status_callback_header"`
	ReplyToID            *string  `json:"reply_to_id"`
	Subject              *string  `json:"subject"`
	Effect               *string  `json:"effect"`
	Service              string   `json:"service"`
}
