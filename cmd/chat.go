package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ConnRefused/AI-Chat-TUI/conversation"
	"github.com/ConnRefused/AI-Chat-TUI/credential"
	"github.com/ConnRefused/AI-Chat-TUI/internal/logging"
	"github.com/ConnRefused/AI-Chat-TUI/internal/tui"
	"github.com/ConnRefused/AI-Chat-TUI/llm/providers"
	"github.com/ConnRefused/AI-Chat-TUI/render"
	"github.com/ConnRefused/AI-Chat-TUI/session"
)

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.logger.Info("session started", map[string]any{"version": appVersion})

	var (
		key       credential.Secret
		reacquire session.ReacquireFunc
		logout    func() error
	)
	if providers.RequiresKey(a.cfg.Provider) {
		flow := a.flow()
		defer flow.EnvSecret.Wipe()

		var src credential.Source
		key, src, err = flow.Acquire(ctx)
		if err != nil {
			if errors.Is(err, credential.ErrAborted) {
				a.term.WriteNotice(render.LevelError, fmt.Sprintf("No usable API key for %s. Exiting.", flow.Label))
			}
			return err
		}
		defer key.Wipe()
		a.logger.Info("credential acquired", map[string]any{"source": src.String()})

		reacquire = func(ctx context.Context) (credential.Secret, error) {
			s, _, err := flow.Acquire(ctx)
			return s, err
		}
		logout = flow.Forget
	}

	a.term.Print(tui.RenderBanner(a.styles, appVersion, a.term.AssistantName, a.cfg.Model, a.term.Width()))

	loop := session.NewLoop(session.LoopConfig{
		Client:       a.client,
		Sink:         a.term,
		Conversation: conversation.New(a.cfg.Sizer()),
		Budget:       a.cfg.Context.Budget,
		SystemPrompt: a.cfg.SystemPrompt,
		Retry:        a.cfg.RetryPolicy(),
		Reacquire:    reacquire,
		Logout:       logout,
		Hooks:        loggingHooks(a.logger),
		Logger:       a.logger,
	})

	err = loop.Run(ctx, key)
	a.logger.Info("session ended", map[string]any{"turns": loop.Conversation().Len()})
	if err == nil {
		a.term.WriteNotice(render.LevelInfo, "Goodbye.")
	}
	return err
}

// loggingHooks records each exchange in the log file. Message content is
// never logged, only its size.
func loggingHooks(logger logging.Logger) *session.HookRegistry {
	hooks := session.NewHookRegistry()
	hooks.Register(session.BeforeRequest, func(_ context.Context, h *session.HookContext) error {
		logger.Debug("request", map[string]any{"messages": len(h.Messages), "attempt": h.Attempt})
		return nil
	})
	hooks.Register(session.AfterReply, func(_ context.Context, h *session.HookContext) error {
		fields := map[string]any{"reply_chars": len(h.Reply), "attempt": h.Attempt}
		if h.Usage != nil {
			fields["prompt_tokens"] = h.Usage.PromptTokens
			fields["completion_tokens"] = h.Usage.CompletionTokens
		}
		logger.Info("reply", fields)
		return nil
	})
	hooks.Register(session.OnRetry, func(_ context.Context, h *session.HookContext) error {
		logger.Warn("retrying", map[string]any{"attempt": h.Attempt, "delay": h.Delay.String(), "error": h.Error})
		return nil
	})
	hooks.Register(session.OnError, func(_ context.Context, h *session.HookContext) error {
		logger.Error("turn failed", map[string]any{"attempt": h.Attempt, "error": h.Error})
		return nil
	})
	return hooks
}
