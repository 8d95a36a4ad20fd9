package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ConnRefused/AI-Chat-TUI/credential"
)

func TestClampMessages(t *testing.T) {
	msgs := []ChatMessage{
		{Role: RoleUser, Content: "short"},
		{Role: RoleAssistant, Content: strings.Repeat("é", 20)},
	}
	got := ClampMessages(msgs, 10)
	if got[0].Content != "short" {
		t.Errorf("short message changed: %q", got[0].Content)
	}
	if !strings.HasPrefix(got[1].Content, strings.Repeat("é", 10)+"\n[TRUNCATED]") {
		t.Errorf("long message = %q", got[1].Content)
	}
	if msgs[1].Content != strings.Repeat("é", 20) {
		t.Error("input slice was modified")
	}
	if out := ClampMessages(msgs, 0); out[1].Content != msgs[1].Content {
		t.Error("zero limit should disable clamping")
	}
}

func TestStreamError_Is(t *testing.T) {
	auth := &StreamError{Kind: KindAuth}
	if !errors.Is(auth, credential.ErrRejected) {
		t.Error("auth error should match ErrRejected")
	}
	wrapped := fmt.Errorf("validating: %w", auth)
	if !errors.Is(wrapped, credential.ErrRejected) {
		t.Error("wrapped auth error should match ErrRejected")
	}
	if errors.Is(&StreamError{Kind: KindNetwork}, credential.ErrRejected) {
		t.Error("network error must not match ErrRejected")
	}
	if !errors.Is(&StreamError{Kind: KindCancelled}, context.Canceled) {
		t.Error("cancelled error should match context.Canceled")
	}
	if se, ok := AsStreamError(wrapped); !ok || se != auth {
		t.Error("AsStreamError did not unwrap")
	}
}

func TestStreamError_Retryable(t *testing.T) {
	tests := []struct {
		err  StreamError
		want bool
	}{
		{StreamError{Kind: KindAuth, StatusCode: 401}, false},
		{StreamError{Kind: KindRateLimited, StatusCode: 429}, true},
		{StreamError{Kind: KindNetwork}, true},
		{StreamError{Kind: KindService, StatusCode: 503}, true},
		{StreamError{Kind: KindService, StatusCode: 400}, false},
		{StreamError{Kind: KindService}, true},
		{StreamError{Kind: KindCancelled}, false},
	}
	for _, tt := range tests {
		if got := tt.err.Retryable(); got != tt.want {
			t.Errorf("%v Retryable = %v, want %v", tt.err.Error(), got, tt.want)
		}
	}
}

func TestStreamError_Message(t *testing.T) {
	e := &StreamError{Kind: KindRateLimited, StatusCode: 429, Message: "slow down"}
	if got := e.Error(); got != "rate_limited (status 429): slow down" {
		t.Errorf("Error() = %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{now.Add(-5 * time.Second).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestErrorFromResponse(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}
	e := ErrorFromResponse(resp, []byte(`{"error":{"message":"no access"}}`))
	if e.Kind != KindAuth || e.Message != "no access" {
		t.Errorf("got %+v", e)
	}

	resp = &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}
	e = ErrorFromResponse(resp, nil)
	if e.Kind != KindService || e.Message != "Bad Gateway" {
		t.Errorf("got %+v", e)
	}
}

func TestErrorFromResponse_TruncatesRawBodyByRune(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{}}
	body := "x" + strings.Repeat("é", 300)
	e := ErrorFromResponse(resp, []byte(body))
	if !utf8.ValidString(e.Message) {
		t.Fatalf("message is not valid UTF-8: %q", e.Message)
	}
	if !strings.HasSuffix(e.Message, "...") {
		t.Errorf("message not truncated: %q", e.Message)
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(e.Message, "...")); n != maxErrorMessage {
		t.Errorf("kept %d runes, want %d", n, maxErrorMessage)
	}
}

func TestFragment_Terminal(t *testing.T) {
	if (Fragment{Text: "x"}).Terminal() {
		t.Error("text fragment is not terminal")
	}
	if !(Fragment{Done: true}).Terminal() || !(Fragment{Err: &StreamError{}}).Terminal() {
		t.Error("done and error fragments are terminal")
	}
}

func TestClientConfig_WithDefaults(t *testing.T) {
	c := ClientConfig{IdleTimeout: time.Second}.WithDefaults()
	if c.ConnectTimeout != DefaultConnectTimeout || c.IdleTimeout != time.Second || c.ValidateTimeout != DefaultValidateTimeout {
		t.Errorf("got %+v", c)
	}
	if c.HTTPClient == nil {
		t.Error("HTTPClient not set")
	}
}
