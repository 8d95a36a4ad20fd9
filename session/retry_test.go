package session

import (
	"context"
	"testing"
	"time"

	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

func TestRetryPolicy_DelayCurve(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Delay(i+1, &llm.StreamError{Kind: llm.KindNetwork}); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, Multiplier: 2, Jitter: 0.5}
	p.Rand = func() float64 { return 0 }
	if got := p.Delay(1, nil); got != 500*time.Millisecond {
		t.Errorf("low jitter = %v, want 500ms", got)
	}
	p.Rand = func() float64 { return 0.999999 }
	if got := p.Delay(1, nil); got < 1499*time.Millisecond || got > 1500*time.Millisecond {
		t.Errorf("high jitter = %v, want ~1.5s", got)
	}

	p.Rand = nil
	for i := 0; i < 100; i++ {
		if d := p.Delay(2, nil); d < time.Second || d > 3*time.Second {
			t.Fatalf("Delay(2) = %v outside [1s, 3s]", d)
		}
	}
}

func TestRetryPolicy_HonoursRetryAfter(t *testing.T) {
	p := DefaultRetryPolicy()
	err := &llm.StreamError{Kind: llm.KindRateLimited, RetryAfter: 7 * time.Second}
	if got := p.Delay(1, err); got != 7*time.Second {
		t.Errorf("Delay = %v, want 7s", got)
	}
	err.RetryAfter = time.Hour
	if got := p.Delay(1, err); got != maxRetryAfter {
		t.Errorf("Delay = %v, want cap %v", got, maxRetryAfter)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		err     *llm.StreamError
		want    bool
	}{
		{"network", p, 1, &llm.StreamError{Kind: llm.KindNetwork}, true},
		{"rate limited", p, 2, &llm.StreamError{Kind: llm.KindRateLimited}, true},
		{"attempts exhausted", p, 3, &llm.StreamError{Kind: llm.KindNetwork}, false},
		{"auth", p, 1, &llm.StreamError{Kind: llm.KindAuth}, false},
		{"cancelled", p, 1, &llm.StreamError{Kind: llm.KindCancelled}, false},
		{"service disabled", p, 1, &llm.StreamError{Kind: llm.KindService, StatusCode: 503}, false},
		{"service enabled", RetryPolicy{MaxAttempts: 3, RetryServiceErrors: true}, 1, &llm.StreamError{Kind: llm.KindService, StatusCode: 503}, true},
		{"client error", RetryPolicy{MaxAttempts: 3, RetryServiceErrors: true}, 1, &llm.StreamError{Kind: llm.KindService, StatusCode: 404}, false},
		{"nil", p, 1, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.ShouldRetry(tt.attempt, tt.err); got != tt.want {
				t.Errorf("ShouldRetry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSleep_InterruptedByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if sleep(ctx, time.Minute) {
		t.Error("sleep reported completion after cancel")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("sleep was not interrupted")
	}
	if !sleep(context.Background(), time.Millisecond) {
		t.Error("short sleep did not complete")
	}
}
