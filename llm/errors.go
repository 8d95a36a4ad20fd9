package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ConnRefused/AI-Chat-TUI/credential"
)

// ErrorKind classifies a stream failure.
type ErrorKind int

const (
	// KindAuth means the service refused the key.
	KindAuth ErrorKind = iota + 1
	// KindRateLimited means the service asked the client to slow down.
	KindRateLimited
	// KindNetwork covers unreachable hosts, resets and timeouts.
	KindNetwork
	// KindService covers any other error reported by the service.
	KindService
	// KindCancelled means the caller cancelled the request.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	case KindService:
		return "service"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StreamError is the failure carried by a terminal error fragment.
type StreamError struct {
	Kind    ErrorKind
	Message string
	// StatusCode is the HTTP status that produced the error, if any.
	StatusCode int
	// RetryAfter is the delay the service asked for, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *StreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *StreamError) Unwrap() error { return e.Err }

// Is lets an auth failure satisfy errors.Is(err, credential.ErrRejected) and
// a cancellation satisfy errors.Is(err, context.Canceled).
func (e *StreamError) Is(target error) bool {
	switch target {
	case credential.ErrRejected:
		return e.Kind == KindAuth
	case context.Canceled:
		return e.Kind == KindCancelled
	}
	return false
}

// Retryable reports whether repeating the same request may succeed.
// Service errors qualify only for 5xx statuses and mid-stream errors without
// a status.
func (e *StreamError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindNetwork:
		return true
	case KindService:
		return e.StatusCode == 0 || e.StatusCode >= 500
	default:
		return false
	}
}

// NewError builds a StreamError of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *StreamError {
	return &StreamError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsStreamError extracts a *StreamError from err.
func AsStreamError(err error) (*StreamError, bool) {
	var se *StreamError
	ok := errors.As(err, &se)
	return se, ok
}

// ErrorFromResponse classifies a non-2xx HTTP response. body is the (possibly
// truncated) response body; its error message is extracted when it has one of
// the common JSON error shapes.
func ErrorFromResponse(resp *http.Response, body []byte) *StreamError {
	e := &StreamError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Kind = KindAuth
	case resp.StatusCode == http.StatusBadRequest && invalidKeyMessage(e.Message, body):
		// Gemini reports a bad key as 400 INVALID_ARGUMENT.
		e.Kind = KindAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	default:
		e.Kind = KindService
		if resp.StatusCode == http.StatusServiceUnavailable {
			e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as an
// HTTP date. It returns zero when the header is absent or unparseable.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func invalidKeyMessage(msg string, body []byte) bool {
	return strings.Contains(msg, "API key not valid") || strings.Contains(string(body), "API_KEY_INVALID")
}

// maxErrorMessage caps, in runes, a raw error body shown to the user.
const maxErrorMessage = 200

// errorMessage pulls a human-readable message out of an error body. Both the
// OpenAI shape {"error":{"message":...}} and the Gemini list shape
// [{"error":{...}}] are recognised.
func errorMessage(body []byte) string {
	type errBody struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	var one errBody
	if json.Unmarshal(body, &one) == nil && one.Error.Message != "" {
		return one.Error.Message
	}
	var many []errBody
	if json.Unmarshal(body, &many) == nil && len(many) > 0 && many[0].Error.Message != "" {
		return many[0].Error.Message
	}
	s := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(s) > maxErrorMessage {
		s = string([]rune(s)[:maxErrorMessage]) + "..."
	}
	return s
}
