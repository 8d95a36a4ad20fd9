// Package llm provides the provider-agnostic streaming contract between the
// session and a hosted model. Each provider translates to and from its native
// API format.
package llm

import "strconv"

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	System      string        `json:"system,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Fragment is one element of a reply stream: a piece of text, or one of the
// terminal markers Done or Err. Exactly one terminal fragment ends every
// stream.
type Fragment struct {
	Text         string
	Done         bool
	Err          *StreamError
	FinishReason string
	Usage        *UsageInfo
}

// Terminal reports whether f ends the stream.
func (f Fragment) Terminal() bool { return f.Done || f.Err != nil }

// UsageInfo contains token usage information.
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

const truncatedSuffix = "\n[TRUNCATED]"

// ClampMessages returns msgs with every content longer than max characters
// cut down and suffixed with a truncation marker. A max of zero disables it.
func ClampMessages(msgs []ChatMessage, max int) []ChatMessage {
	if max <= 0 {
		return msgs
	}
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		if r := []rune(m.Content); len(r) > max {
			m.Content = string(r[:max]) + truncatedSuffix + " (" + strconv.Itoa(len(r)) + " chars)"
		}
		out[i] = m
	}
	return out
}
