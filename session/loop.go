// Package session runs the interactive request/response loop: it reads user
// input, streams replies, retries transient failures and keeps the
// conversation consistent when a turn fails.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ConnRefused/AI-Chat-TUI/conversation"
	"github.com/ConnRefused/AI-Chat-TUI/credential"
	"github.com/ConnRefused/AI-Chat-TUI/internal/logging"
	"github.com/ConnRefused/AI-Chat-TUI/llm"
	"github.com/ConnRefused/AI-Chat-TUI/render"
)

// ReacquireFunc obtains a fresh key after the service rejected the current
// one.
type ReacquireFunc func(ctx context.Context) (credential.Secret, error)

// LoopConfig configures the session loop.
type LoopConfig struct {
	Client llm.Client
	Sink   render.Sink
	// Conversation is reused when set, so a caller may keep history across
	// loops. Nil starts empty.
	Conversation *conversation.Conversation
	// Budget is the context-size budget in sizer units. Zero disables
	// trimming.
	Budget       int
	SystemPrompt string
	Retry        RetryPolicy
	// Reacquire runs credential acquisition again after an auth error. Nil
	// ends the turn with a notice instead.
	Reacquire ReacquireFunc
	// Logout deletes the stored key for /logout.
	Logout func() error
	Hooks  *HookRegistry
	Logger logging.Logger
	// Prompt is the input prompt label. Empty means "You".
	Prompt string
}

// Loop is the interactive session. It is single-threaded: at any moment it
// is either waiting for input or waiting for the next reply fragment.
type Loop struct {
	client    llm.Client
	sink      render.Sink
	conv      *conversation.Conversation
	budget    int
	system    string
	retry     RetryPolicy
	reacquire ReacquireFunc
	logout    func() error
	hooks     *HookRegistry
	logger    logging.Logger
	prompt    string

	// acquired holds keys obtained mid-session; Run wipes them on return.
	acquired []credential.Secret
	sleep    func(ctx context.Context, d time.Duration) bool
}

// NewLoop creates a Loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	conv := cfg.Conversation
	if conv == nil {
		conv = conversation.New(nil)
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NewHookRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "You"
	}
	return &Loop{
		client:    cfg.Client,
		sink:      cfg.Sink,
		conv:      conv,
		budget:    cfg.Budget,
		system:    cfg.SystemPrompt,
		retry:     retry,
		reacquire: cfg.Reacquire,
		logout:    cfg.Logout,
		hooks:     hooks,
		logger:    logger,
		prompt:    prompt,
		sleep:     sleep,
	}
}

// Conversation returns the loop's history.
func (l *Loop) Conversation() *conversation.Conversation { return l.conv }

// Run reads and answers user input until the user quits. A key obtained by
// re-acquisition during the session is wiped before Run returns; the caller
// still owns key.
//
// Run returns nil on /quit, end of input, an empty line or an interrupt at
// the prompt; credential.ErrAborted if re-acquisition was abandoned; and any
// other error only when terminal I/O fails.
func (l *Loop) Run(ctx context.Context, key credential.Secret) error {
	defer func() {
		for i := range l.acquired {
			l.acquired[i].Wipe()
		}
		l.acquired = nil
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := l.sink.ReadLine(l.prompt, true)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, render.ErrInterrupted) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		text := strings.TrimSpace(line)
		if text == "" {
			return nil
		}

		if strings.HasPrefix(text, "/") {
			quit, err := l.runCommand(text)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		if key, err = l.turn(ctx, key, text); err != nil {
			return err
		}
	}
}

// turn sends one user message and settles its outcome. On return the
// conversation holds either the new user/assistant pair or nothing from this
// turn.
func (l *Loop) turn(ctx context.Context, key credential.Secret, text string) (credential.Secret, error) {
	if err := l.conv.Append(conversation.RoleUser, text); err != nil {
		l.logger.Error("conversation out of order", map[string]any{"error": err})
		l.sink.WriteNotice(render.LevelError, "Internal error: the conversation is out of order. Use /clear to start over.")
		return key, nil
	}
	if n := l.conv.TrimToBudget(l.budgetOrMax()); n > 0 {
		l.logger.Debug("conversation trimmed", map[string]any{"evicted": n, "size": l.conv.Size()})
	}

	reauthed := false
	for attempt := 1; ; attempt++ {
		req := l.request()
		if err := l.hooks.Fire(ctx, BeforeRequest, &HookContext{Messages: req.Messages, Attempt: attempt}); err != nil {
			l.rollback()
			l.sink.WriteNotice(render.LevelError, fmt.Sprintf("Request blocked: %v", err))
			return key, nil
		}

		reply, end := l.consume(ctx, key, req)
		if end.Done {
			if err := l.conv.Append(conversation.RoleAssistant, reply); err != nil {
				l.logger.Error("conversation out of order", map[string]any{"error": err})
				l.rollback()
				return key, nil
			}
			_ = l.hooks.Fire(ctx, AfterReply, &HookContext{Reply: reply, Usage: end.Usage, Attempt: attempt})
			return key, nil
		}

		se := end.Err
		l.sink.DiscardReply()

		switch {
		case se.Kind == llm.KindCancelled:
			l.logger.Debug("reply cancelled", map[string]any{"attempt": attempt})
			l.rollback()
			return key, nil

		case se.Kind == llm.KindAuth:
			_ = l.hooks.Fire(ctx, OnError, &HookContext{Error: se, Attempt: attempt})
			if l.reacquire == nil || reauthed {
				l.sink.WriteNotice(render.LevelError, describe(se))
				l.rollback()
				return key, nil
			}
			reauthed = true
			l.sink.WriteNotice(render.LevelWarn, "The API key was rejected by the service. Please enter a new one.")
			fresh, err := l.reacquire(ctx)
			if err != nil {
				l.rollback()
				return key, err
			}
			l.acquired = append(l.acquired, fresh)
			key = fresh
			attempt = 0

		case l.retry.ShouldRetry(attempt, se):
			delay := l.retry.Delay(attempt, se)
			_ = l.hooks.Fire(ctx, OnRetry, &HookContext{Error: se, Attempt: attempt, Delay: delay})
			l.sink.WriteNotice(render.LevelWarn, fmt.Sprintf("%s Retrying in %s (attempt %d of %d)...",
				describe(se), delay.Round(100*time.Millisecond), attempt+1, l.retry.MaxAttempts))
			if !l.wait(ctx, delay) {
				l.rollback()
				return key, nil
			}

		default:
			_ = l.hooks.Fire(ctx, OnError, &HookContext{Error: se, Attempt: attempt})
			msg := describe(se)
			if se.Retryable() {
				msg += " Please try again later."
			}
			l.sink.WriteNotice(render.LevelError, msg)
			l.rollback()
			return key, nil
		}
	}
}

// consume streams one attempt to the sink and returns the accumulated text
// with the terminal fragment. A cancel signal during the wait cancels the
// request.
func (l *Loop) consume(ctx context.Context, key credential.Secret, req *llm.ChatRequest) (string, llm.Fragment) {
	sctx, stop := l.sink.NotifyCancel(ctx)
	defer stop()

	l.sink.BeginReply()
	var (
		b   strings.Builder
		end *llm.Fragment
	)
	for f := range l.client.Stream(sctx, key, req) {
		f := f // per-iteration copy (go directive < 1.22); end keeps &f
		if end != nil {
			l.logger.Warn("fragment after end of stream ignored", map[string]any{"text_len": len(f.Text)})
			continue
		}
		if f.Terminal() {
			end = &f
			continue
		}
		b.WriteString(f.Text)
		l.sink.WriteFragment(f.Text)
	}

	if end == nil {
		l.logger.Warn("stream closed without terminal fragment", nil)
		e := llm.NewError(llm.KindNetwork, "the reply ended unexpectedly")
		if sctx.Err() != nil {
			e = llm.NewError(llm.KindCancelled, "request cancelled")
		}
		end = &llm.Fragment{Err: e}
	}
	if end.Done {
		l.sink.EndReply()
	}
	return b.String(), *end
}

// wait sleeps for a retry delay; a cancel signal cuts it short.
func (l *Loop) wait(ctx context.Context, d time.Duration) bool {
	wctx, stop := l.sink.NotifyCancel(ctx)
	defer stop()
	return l.sleep(wctx, d)
}

// rollback removes the pending user turn of a turn that produced no reply.
func (l *Loop) rollback() {
	if t, ok := l.conv.DropPending(); ok {
		l.logger.Debug("turn rolled back", map[string]any{"chars": len(t.Content)})
	}
}

func (l *Loop) request() *llm.ChatRequest {
	turns := l.conv.Turns()
	msgs := make([]llm.ChatMessage, len(turns))
	for i, t := range turns {
		msgs[i] = llm.ChatMessage{Role: string(t.Role), Content: t.Content}
	}
	return &llm.ChatRequest{
		Model:    l.client.ModelID(),
		System:   l.system,
		Messages: msgs,
	}
}

func (l *Loop) budgetOrMax() int {
	if l.budget <= 0 {
		return int(^uint(0) >> 1)
	}
	return l.budget
}

// describe turns a stream error into a user-facing sentence.
func describe(e *llm.StreamError) string {
	switch e.Kind {
	case llm.KindAuth:
		return "The API key was rejected. Check it with `aichat auth login`."
	case llm.KindRateLimited:
		return "Rate limit or quota exceeded."
	case llm.KindNetwork:
		return fmt.Sprintf("Could not reach the model service (%s).", e.Message)
	case llm.KindService:
		if e.StatusCode != 0 {
			return fmt.Sprintf("The model service returned an error (%d): %s.", e.StatusCode, strings.TrimSuffix(e.Message, "."))
		}
		return fmt.Sprintf("The model service returned an error: %s.", strings.TrimSuffix(e.Message, "."))
	default:
		return e.Error()
	}
}
