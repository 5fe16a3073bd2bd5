package model

import "fmt"

// ConversationKey identifies one addressable message log: a phone number plus
// the chat thread counter current for that phone.
type ConversationKey struct {
	Phone  int64 `json:"phone"`
	ChatID int64 `json:"chat_id"`
}

// String renders the key in phone/chat form for logs and stream subjects.
func (k ConversationKey) String() string {
	return fmt.Sprintf("%d/%d", k.Phone, k.ChatID)
}

// MessageRecord is one entry in a conversation log. Records are append-only
// and arrival-ordered; trimming for model input happens at read time, never in
// storage.
type MessageRecord struct {
	Text    string `json:"text"`
	IsHuman bool   `json:"is_human"`
}
