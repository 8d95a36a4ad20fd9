package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ConnRefused/AI-Chat-TUI/config"
	"github.com/ConnRefused/AI-Chat-TUI/credential"
	"github.com/ConnRefused/AI-Chat-TUI/internal/logging"
	"github.com/ConnRefused/AI-Chat-TUI/internal/tui"
	"github.com/ConnRefused/AI-Chat-TUI/llm"
	"github.com/ConnRefused/AI-Chat-TUI/llm/providers"
)

// app holds what the commands share once flags are parsed.
type app struct {
	cfg    *config.Config
	env    map[string]string
	logger logging.Logger
	styles *tui.StyleSet
	term   *tui.Terminal
	client llm.Client
	store  credential.Store
}

// loadConfig reads the config file and layers the environment and flags
// over it. An explicit --config must exist.
func loadConfig() (*config.Config, map[string]string, error) {
	path := cfgFile
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	cfg, err := config.Load(path, cfgFile != "")
	if err != nil {
		return nil, nil, err
	}

	envPath, err := config.DefaultEnvPath()
	if err != nil {
		return nil, nil, err
	}
	env, err := config.LoadEnv(envPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Resolve(env, config.Overrides{
		Provider:     providerFlag,
		Model:        modelFlag,
		BaseURL:      baseURLFlag,
		SystemPrompt: systemFlag,
		Theme:        themeOverride,
		MemoryStore:  noKeyring,
		Verbose:      verbose,
	}); err != nil {
		return nil, nil, fmt.Errorf("resolving config: %w", err)
	}
	return cfg, env, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, env, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	zl, err := logging.NewFileLogger(logPath, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := zl.With(map[string]any{
		"session_id": uuid.NewString(),
		"provider":   cfg.Provider,
		"model":      cfg.Model,
	})

	client, err := providers.NewClient(cfg.Provider, cfg.ClientConfig())
	if err != nil {
		return nil, err
	}

	styles := tui.NewStyleSet(tui.DetectTheme(cfg.Theme))
	t := newTerminal(cmd, styles, cfg.Markdown)
	t.AssistantName = config.Label(cfg.Provider)

	var store credential.Store
	if cfg.Credential.Store == "memory" {
		store = &credential.MemoryStore{}
	} else {
		store = credential.NewKeyringStore(cfg.Provider)
	}

	return &app{
		cfg:    cfg,
		env:    env,
		logger: logger,
		styles: styles,
		term:   t,
		client: client,
		store:  store,
	}, nil
}

// newTerminal uses the real terminal unless the command's input or output
// was redirected with SetIn/SetOut.
func newTerminal(cmd *cobra.Command, styles *tui.StyleSet, markdown bool) *tui.Terminal {
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	if in == os.Stdin && out == os.Stdout {
		return tui.NewTerminal(styles, markdown)
	}
	return tui.NewPipeTerminal(in, out, styles)
}

// flow returns the credential acquisition flow for the configured provider.
func (a *app) flow() *credential.Flow {
	key, name := config.ResolveAPIKey(a.cfg.Provider, a.env)
	f := &credential.Flow{
		Store:      a.store,
		Validator:  a.client,
		Prompter:   a.term,
		Logger:     a.logger,
		Label:      config.Label(a.cfg.Provider),
		EnvName:    name,
		MaxPrompts: a.cfg.Credential.MaxPrompts,
	}
	if key != "" {
		f.EnvSecret = credential.NewSecret(key)
	}
	return f
}

func (a *app) close() {
	a.term.Close()
	_ = a.logger.Sync()
}
