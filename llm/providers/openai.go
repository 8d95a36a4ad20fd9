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

// OpenAIClient implements llm.Client for the OpenAI Chat Completions API and
// any OpenAI-compatible endpoint (Gemini, Ollama).
type OpenAIClient struct {
	provider string
	baseURL  string
	model    string
	cfg      llm.ClientConfig
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg llm.ClientConfig) *OpenAIClient {
	return newOpenAICompatible("openai", "https://api.openai.com/v1", cfg)
}

func newOpenAICompatible(provider, defaultBase string, cfg llm.ClientConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBase
	}
	return &OpenAIClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    cfg.Model,
		cfg:      cfg.WithDefaults(),
	}
}

func (c *OpenAIClient) ModelID() string  { return c.model }
func (c *OpenAIClient) Provider() string { return c.provider }

// Stream sends a streaming chat completion request.
func (c *OpenAIClient) Stream(ctx context.Context, key credential.Secret, req *llm.ChatRequest) <-chan llm.Fragment {
	body := c.toOpenAIRequest(req)
	return stream(ctx, c.cfg, func(ctx context.Context) (*http.Request, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		c.setHeaders(httpReq, key)
		httpReq.Header.Set("Accept", "text/event-stream")
		return httpReq, nil
	}, &openaiDecoder{})
}

// Validate lists models, which any valid key may do.
func (c *OpenAIClient) Validate(ctx context.Context, key credential.Secret) error {
	return checkKey(ctx, c.cfg, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, key)
		return req, nil
	}, func(status int) bool { return status == http.StatusOK })
}

func (c *OpenAIClient) setHeaders(req *http.Request, key credential.Secret) {
	req.Header.Set("Content-Type", "application/json")
	if !key.IsZero() {
		req.Header.Set("Authorization", "Bearer "+key.Reveal())
	}
}

// openaiRequest is the OpenAI-specific request format.
type openaiRequest struct {
	Model         string            `json:"model"`
	Messages      []llm.ChatMessage `json:"messages"`
	Temperature   *float64          `json:"temperature,omitempty"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Stream        bool              `json:"stream"`
	StreamOptions *streamOptions    `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func (c *OpenAIClient) toOpenAIRequest(req *llm.ChatRequest) openaiRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	msgs := make([]llm.ChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: req.System})
	}
	msgs = append(msgs, llm.ClampMessages(req.Messages, c.cfg.MaxMessageChars)...)

	r := openaiRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}
	// Ollama rejects unknown stream options on older releases.
	if c.provider != "ollama" {
		r.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return r
}

// openaiStreamChunk is a streaming response chunk.
type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.UsageInfo `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

type openaiDecoder struct {
	finishReason string
	usage        *llm.UsageInfo
}

func (d *openaiDecoder) event(_, data string) []llm.Fragment {
	if strings.TrimSpace(data) == "[DONE]" {
		return []llm.Fragment{d.done()}
	}

	var chunk openaiStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil
	}
	if chunk.Error != nil {
		kind := llm.KindService
		if strings.Contains(chunk.Error.Type, "rate_limit") || fmt.Sprint(chunk.Error.Code) == "429" {
			kind = llm.KindRateLimited
		}
		return []llm.Fragment{{Err: llm.NewError(kind, "%s", chunk.Error.Message)}}
	}
	if chunk.Usage != nil {
		d.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	c0 := chunk.Choices[0]
	if c0.FinishReason != nil && *c0.FinishReason != "" {
		d.finishReason = *c0.FinishReason
	}
	if c0.Delta.Content == "" {
		return nil
	}
	return []llm.Fragment{{Text: c0.Delta.Content}}
}

func (d *openaiDecoder) eof() llm.Fragment {
	if d.finishReason != "" {
		return d.done()
	}
	return truncatedStream()
}

func (d *openaiDecoder) done() llm.Fragment {
	return llm.Fragment{Done: true, FinishReason: d.finishReason, Usage: d.usage}
}
