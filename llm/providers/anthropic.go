package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ConnRefused/AI-Chat-TUI/credential"
	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// AnthropicClient implements llm.Client for the Anthropic Messages API.
type AnthropicClient struct {
	baseURL string
	model   string
	cfg     llm.ClientConfig
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg llm.ClientConfig) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.Model,
		cfg:     cfg.WithDefaults(),
	}
}

func (c *AnthropicClient) ModelID() string  { return c.model }
func (c *AnthropicClient) Provider() string { return "anthropic" }

// Stream sends a streaming messages request.
func (c *AnthropicClient) Stream(ctx context.Context, key credential.Secret, req *llm.ChatRequest) <-chan llm.Fragment {
	body := c.toAnthropicRequest(req)
	return stream(ctx, c.cfg, func(ctx context.Context) (*http.Request, error) {
		return c.newMessagesRequest(ctx, key, body)
	}, &anthropicDecoder{})
}

// Validate sends the smallest possible messages request. A 400 still proves
// the key was accepted.
func (c *AnthropicClient) Validate(ctx context.Context, key credential.Secret) error {
	body := anthropicRequest{
		Model:     c.model,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: llm.RoleUser, Content: "hi"}},
	}
	return checkKey(ctx, c.cfg, func(ctx context.Context) (*http.Request, error) {
		return c.newMessagesRequest(ctx, key, body)
	}, func(status int) bool { return status == http.StatusOK || status == http.StatusBadRequest })
}

func (c *AnthropicClient) newMessagesRequest(ctx context.Context, key credential.Secret, body anthropicRequest) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key.Reveal())
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

// Anthropic-specific request types.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *AnthropicClient) toAnthropicRequest(req *llm.ChatRequest) anthropicRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicMaxTokens
	}

	var msgs []anthropicMessage
	for _, m := range llm.ClampMessages(req.Messages, c.cfg.MaxMessageChars) {
		// System text travels in its own field.
		if m.Role == llm.RoleSystem {
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	return anthropicRequest{
		Model:       model,
		Messages:    msgs,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
}

// Anthropic streaming event types.
type anthropicMessageStart struct {
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

type anthropicContentBlockDelta struct {
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta"`
}

type anthropicMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicDecoder struct {
	stopReason string
	usage      llm.UsageInfo
}

func (d *anthropicDecoder) event(name, data string) []llm.Fragment {
	switch name {
	case "message_start":
		var ev anthropicMessageStart
		if json.Unmarshal([]byte(data), &ev) == nil {
			d.usage.PromptTokens = ev.Message.Usage.InputTokens
		}

	case "content_block_delta":
		var ev anthropicContentBlockDelta
		if json.Unmarshal([]byte(data), &ev) != nil {
			return nil
		}
		if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			return []llm.Fragment{{Text: ev.Delta.Text}}
		}

	case "message_delta":
		var ev anthropicMessageDelta
		if json.Unmarshal([]byte(data), &ev) != nil {
			return nil
		}
		if ev.Delta.StopReason != "" {
			d.stopReason = ev.Delta.StopReason
		}
		d.usage.CompletionTokens = ev.Usage.OutputTokens

	case "message_stop":
		return []llm.Fragment{d.done()}

	case "error":
		var ev anthropicError
		_ = json.Unmarshal([]byte(data), &ev)
		msg := ev.Error.Message
		if msg == "" {
			msg = data
		}
		kind := llm.KindService
		switch ev.Error.Type {
		case "rate_limit_error":
			kind = llm.KindRateLimited
		case "authentication_error", "permission_error":
			kind = llm.KindAuth
		}
		return []llm.Fragment{{Err: llm.NewError(kind, "%s", msg)}}
	}
	return nil
}

func (d *anthropicDecoder) eof() llm.Fragment {
	if d.stopReason != "" {
		return d.done()
	}
	return truncatedStream()
}

func (d *anthropicDecoder) done() llm.Fragment {
	u := d.usage
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return llm.Fragment{Done: true, FinishReason: d.stopReason, Usage: &u}
}
