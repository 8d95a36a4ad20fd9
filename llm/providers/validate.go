package providers

import (
	"context"
	"io"
	"net/http"

	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

// checkKey sends a cheap authenticated request bounded by the validate timeout.
// accept decides which successful statuses mean the key works; anything else
// is classified like a failed stream request.
func checkKey(ctx context.Context, cfg llm.ClientConfig, newReq func(context.Context) (*http.Request, error), accept func(status int) bool) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.ValidateTimeout)
	defer cancel()

	req, err := newReq(ctx)
	if err != nil {
		return err
	}
	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &llm.StreamError{Kind: llm.KindNetwork, Message: "timed out validating the API key", Err: err}
		}
		if ctx.Err() != nil {
			return cancelledError(ctx)
		}
		return &llm.StreamError{Kind: llm.KindNetwork, Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if accept(resp.StatusCode) {
		return nil
	}
	return llm.ErrorFromResponse(resp, body)
}
