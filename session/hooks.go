package session

import (
	"context"
	"time"

	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

// HookPoint identifies when a hook fires in the session loop.
type HookPoint int

const (
	BeforeRequest HookPoint = iota
	AfterReply
	OnRetry
	OnError
)

// HookContext carries data available to hooks at each hook point.
type HookContext struct {
	// Messages is the history sent with the request.
	Messages []llm.ChatMessage
	// Attempt counts tries of the current turn, starting at 1.
	Attempt int
	Reply   string
	Usage   *llm.UsageInfo
	// Delay is the backoff before the next attempt (OnRetry only).
	Delay time.Duration
	Error error
}

// Hook is a function invoked at a specific point in the session loop.
type Hook func(ctx context.Context, hctx *HookContext) error

// HookRegistry manages registered hooks for each hook point.
type HookRegistry struct {
	hooks map[HookPoint][]Hook
}

// NewHookRegistry creates an empty HookRegistry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[HookPoint][]Hook),
	}
}

// Register adds a hook for the given point. Hooks fire in registration order.
func (r *HookRegistry) Register(point HookPoint, h Hook) {
	r.hooks[point] = append(r.hooks[point], h)
}

// Fire invokes all hooks registered for the given point in order.
// If any hook returns an error, execution stops and the error is returned.
// A nil registry has no hooks.
func (r *HookRegistry) Fire(ctx context.Context, point HookPoint, hctx *HookContext) error {
	if r == nil {
		return nil
	}
	for _, h := range r.hooks[point] {
		if err := h(ctx, hctx); err != nil {
			return err
		}
	}
	return nil
}
