package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ConnRefused/AI-Chat-TUI/credential"
	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

var testKey = credential.NewSecret("test-key")

// collect drains a stream, failing the test if it does not end in time or
// does not end with exactly one terminal fragment.
func collect(t *testing.T, ch <-chan llm.Fragment) (string, llm.Fragment) {
	t.Helper()
	var (
		text     strings.Builder
		terminal *llm.Fragment
	)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				if terminal == nil {
					t.Fatal("stream closed without a terminal fragment")
				}
				return text.String(), *terminal
			}
			if terminal != nil {
				t.Fatalf("fragment after terminal: %+v", f)
			}
			if f.Terminal() {
				terminal = &f
				continue
			}
			text.WriteString(f.Text)
		case <-deadline:
			t.Fatal("stream did not finish")
		}
	}
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintln(w, l)
			fmt.Fprintln(w)
		}
	}))
}

func chunk(text string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]string{"content": text}}},
	})
	return "data: " + string(b)
}

func userRequest(text string) *llm.ChatRequest {
	return &llm.ChatRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: text}}}
}

func TestOpenAIStream_ConcatenatesFragments(t *testing.T) {
	srv := sseServer(t, chunk("Hel"), chunk("lo"), "data: [DONE]")
	defer srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL, Model: "gpt-test"})
	text, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}
	if !end.Done {
		t.Errorf("terminal = %+v, want Done", end)
	}
}

func TestOpenAIStream_SendsSystemAndAuth(t *testing.T) {
	var got openaiRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL, Model: "gpt-test", MaxMessageChars: 5})
	req := userRequest("0123456789")
	req.System = "be brief"
	collect(t, c.Stream(context.Background(), testKey, req))

	if auth != "Bearer test-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != "gpt-test" || !got.Stream {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if !strings.HasPrefix(got.Messages[1].Content, "01234\n[TRUNCATED]") {
		t.Errorf("message not clamped: %q", got.Messages[1].Content)
	}
}

func TestOpenAIStream_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		kind      llm.ErrorKind
		retryable bool
	}{
		{http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, llm.KindAuth, false},
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llm.KindRateLimited, true},
		{http.StatusInternalServerError, `oops`, llm.KindService, true},
		{http.StatusNotFound, `{"error":{"message":"no such model"}}`, llm.KindService, false},
		{http.StatusBadRequest, `[{"error":{"message":"API key not valid. Please pass a valid API key."}}]`, llm.KindAuth, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL})
			_, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
			if end.Err == nil {
				t.Fatalf("terminal = %+v, want error", end)
			}
			if end.Err.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", end.Err.Kind, tt.kind)
			}
			if end.Err.Retryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", end.Err.Retryable(), tt.retryable)
			}
			if tt.kind == llm.KindRateLimited && end.Err.RetryAfter != 2*time.Second {
				t.Errorf("RetryAfter = %v, want 2s", end.Err.RetryAfter)
			}
			if tt.kind == llm.KindAuth && !errors.Is(end.Err, credential.ErrRejected) {
				t.Error("auth error does not match credential.ErrRejected")
			}
		})
	}
}

func TestOpenAIStream_MidStreamError(t *testing.T) {
	srv := sseServer(t, chunk("He"), `data: {"error":{"message":"overloaded","type":"server_error"}}`)
	defer srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL})
	text, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if text != "He" {
		t.Errorf("text = %q", text)
	}
	if end.Err == nil || end.Err.Kind != llm.KindService || !end.Err.Retryable() {
		t.Errorf("terminal = %+v, want retryable service error", end)
	}
}

func TestOpenAIStream_EOFWithoutDone(t *testing.T) {
	srv := sseServer(t, chunk("partial"))
	defer srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL})
	_, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if end.Err == nil || end.Err.Kind != llm.KindNetwork {
		t.Errorf("terminal = %+v, want network error", end)
	}
}

func TestOpenAIStream_EOFAfterFinishReason(t *testing.T) {
	srv := sseServer(t, chunk("ok"), `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`)
	defer srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL})
	_, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if !end.Done || end.FinishReason != "stop" {
		t.Errorf("terminal = %+v, want Done with finish reason", end)
	}
}

func TestOpenAIStream_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s\n\n", chunk("He"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL, IdleTimeout: 100 * time.Millisecond})
	text, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if text != "He" {
		t.Errorf("text = %q", text)
	}
	if end.Err == nil || end.Err.Kind != llm.KindNetwork {
		t.Fatalf("terminal = %+v, want network error", end)
	}
	if !errors.Is(end.Err, errIdleTimeout) {
		t.Errorf("cause = %v, want idle timeout", end.Err.Err)
	}
}

func TestOpenAIStream_StalledErrorBody(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":`)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewOpenAIClient(llm.ClientConfig{
		BaseURL:        srv.URL,
		ConnectTimeout: 200 * time.Millisecond,
		IdleTimeout:    200 * time.Millisecond,
	})
	start := time.Now()
	_, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stream took %v to end", elapsed)
	}
	if end.Err == nil || end.Err.Kind != llm.KindNetwork {
		t.Fatalf("terminal = %+v, want network error", end)
	}
	if !errors.Is(end.Err, errIdleTimeout) {
		t.Errorf("cause = %v, want idle timeout", end.Err.Err)
	}
	if !end.Err.Retryable() {
		t.Error("stalled error body should be retryable")
	}
}

func TestOpenAIStream_ConnectTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL, ConnectTimeout: 100 * time.Millisecond})
	_, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if end.Err == nil || !errors.Is(end.Err, errConnectTimeout) {
		t.Errorf("terminal = %+v, want connect timeout", end)
	}
}

func TestOpenAIStream_Cancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s\n\n", chunk("He"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL})
	ch := c.Stream(ctx, testKey, userRequest("hi"))
	if f := <-ch; f.Text != "He" {
		t.Fatalf("first fragment = %+v", f)
	}
	cancel()
	_, end := collect(t, ch)
	if end.Err == nil || end.Err.Kind != llm.KindCancelled {
		t.Errorf("terminal = %+v, want cancelled", end)
	}
	if !errors.Is(end.Err, context.Canceled) {
		t.Error("cancelled error does not match context.Canceled")
	}
}

func TestOpenAIStream_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: url})
	_, end := collect(t, c.Stream(context.Background(), testKey, userRequest("hi")))
	if end.Err == nil || end.Err.Kind != llm.KindNetwork {
		t.Errorf("terminal = %+v, want network error", end)
	}
}

func TestOpenAIValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %s, want /models", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer valid-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL})
	if err := c.Validate(context.Background(), credential.NewSecret("valid-key")); err != nil {
		t.Fatalf("valid key: %v", err)
	}
	err := c.Validate(context.Background(), credential.NewSecret("bad-key"))
	if !errors.Is(err, credential.ErrRejected) {
		t.Errorf("bad key: got %v, want ErrRejected", err)
	}
}

func TestOpenAIValidate_ServerErrorIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenAIClient(llm.ClientConfig{BaseURL: srv.URL})
	err := c.Validate(context.Background(), testKey)
	if err == nil || errors.Is(err, credential.ErrRejected) {
		t.Errorf("got %v, want non-rejection error", err)
	}
}

func TestNewClient(t *testing.T) {
	for _, name := range Names {
		c, err := NewClient(name, llm.ClientConfig{Model: "m"})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if c.Provider() != name || c.ModelID() != "m" {
			t.Errorf("%s: Provider=%s ModelID=%s", name, c.Provider(), c.ModelID())
		}
	}
	if _, err := NewClient("bogus", llm.ClientConfig{}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if g := NewOllamaClient(llm.ClientConfig{}); g.baseURL != OllamaBaseURL {
		t.Errorf("ollama base = %s", g.baseURL)
	}
}
