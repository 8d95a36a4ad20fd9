package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/ConnRefused/AI-Chat-TUI/credential"
)

// Client is the interface for streaming replies from a model provider.
type Client interface {
	// Stream sends req authenticated with key and returns the reply as a
	// channel of fragments. The channel always delivers exactly one terminal
	// fragment (Done or Err) and is then closed; failures never surface any
	// other way. Cancelling ctx ends the stream with a KindCancelled error.
	Stream(ctx context.Context, key credential.Secret, req *ChatRequest) <-chan Fragment
	// Validate confirms key with a cheap authenticated call. A refused key
	// yields an error matching credential.ErrRejected.
	Validate(ctx context.Context, key credential.Secret) error
	// ModelID returns the model identifier this client is configured for.
	ModelID() string
	// Provider returns the provider name, e.g. "gemini".
	Provider() string
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	BaseURL string
	Model   string
	// MaxMessageChars clamps each outbound message. Zero disables clamping.
	MaxMessageChars int
	// ConnectTimeout bounds the wait for response headers.
	ConnectTimeout time.Duration
	// IdleTimeout bounds the gap between two reads of a streaming body.
	IdleTimeout time.Duration
	// ValidateTimeout bounds a whole Validate call.
	ValidateTimeout time.Duration
	// HTTPClient overrides the transport. It must not set a Timeout.
	HTTPClient *http.Client
}

const (
	DefaultConnectTimeout  = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultValidateTimeout = 10 * time.Second
)

// WithDefaults returns a copy of c with zero timeouts replaced by defaults.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ValidateTimeout <= 0 {
		c.ValidateTimeout = DefaultValidateTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}
