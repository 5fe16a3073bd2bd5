// Package prompt assembles conversation history into a bounded model prompt.
package prompt

import (
	"github.com/juneau-ai/loop-relay/internal/llm"
	"github.com/juneau-ai/loop-relay/internal/model"
)

// CharsPerToken is the approximate number of characters per token.
// This is a simple heuristic - actual tokenization varies by model.
const CharsPerToken = 4

// Build renders conversation records as chat turns, oldest first. Human
// records become user turns, the rest assistant turns.
func Build(history []model.MessageRecord) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history))
	for _, record := range history {
		role := llm.RoleAssistant
		if record.IsHuman {
			role = llm.RoleUser
		}
		messages = append(messages, llm.ChatMessage{
			Role:    role,
			Content: record.Text,
		})
	}
	return messages
}

// Trim cuts the prompt to approximately maxTokens, dropping the oldest turns
// first. The kept window always starts on a user turn: a window opening with
// an assistant turn is an invalid conversation for most model APIs. The
// system instruction is budgeted separately by the caller and never trimmed.
func Trim(messages []llm.ChatMessage, maxTokens int) []llm.ChatMessage {
	if maxTokens <= 0 || len(messages) == 0 {
		result := make([]llm.ChatMessage, len(messages))
		copy(result, messages)
		return result
	}

	// Walk backward from the most recent turn, including turns until the
	// budget is spent.
	start := len(messages)
	budget := maxTokens
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i])
		if cost > budget {
			break
		}
		budget -= cost
		start = i
	}

	// Advance past any leading assistant turns in the kept window.
	for start < len(messages) && messages[start].Role != llm.RoleUser {
		start++
	}

	result := make([]llm.ChatMessage, len(messages)-start)
	copy(result, messages[start:])
	return result
}

// EstimateTokens estimates the token count for one turn using the ~4
// characters per token heuristic, plus a small per-message overhead.
func EstimateTokens(msg llm.ChatMessage) int {
	chars := len(msg.Role) + len(msg.Content) + 20
	return chars/CharsPerToken + 4
}

// EstimateTotal estimates the token count for a whole prompt.
func EstimateTotal(messages []llm.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg)
	}
	return total
}
