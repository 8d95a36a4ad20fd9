// Package config loads aichat settings from the config file, the environment
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ConnRefused/AI-Chat-TUI/conversation"
	"github.com/ConnRefused/AI-Chat-TUI/llm"
	"github.com/ConnRefused/AI-Chat-TUI/session"
)

// AppName names the config directory and the binary.
const AppName = "aichat"

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Config is the resolved configuration.
type Config struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
	Theme        string `yaml:"theme"`
	// Markdown renders settled replies on a TTY and the /history transcript
	// as markdown.
	Markdown   bool             `yaml:"markdown"`
	Context    ContextConfig    `yaml:"context"`
	Network    NetworkConfig    `yaml:"network"`
	Retry      RetryConfig      `yaml:"retry"`
	Credential CredentialConfig `yaml:"credential"`
	Log        LogConfig        `yaml:"log"`
}

// ContextConfig bounds what is sent with each request.
type ContextConfig struct {
	// Budget is the history size limit, measured in Unit.
	Budget int `yaml:"budget"`
	// Unit is "chars" or "tokens".
	Unit            string `yaml:"unit"`
	MaxMessageChars int    `yaml:"max_message_chars"`
}

type NetworkConfig struct {
	ConnectTimeout  Duration `yaml:"connect_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ValidateTimeout Duration `yaml:"validate_timeout"`
}

type RetryConfig struct {
	MaxAttempts        int      `yaml:"max_attempts"`
	InitialDelay       Duration `yaml:"initial_delay"`
	MaxDelay           Duration `yaml:"max_delay"`
	Multiplier         float64  `yaml:"multiplier"`
	Jitter             float64  `yaml:"jitter"`
	RetryServiceErrors bool     `yaml:"retry_service_errors"`
}

type CredentialConfig struct {
	// Store is "keyring" or "memory".
	Store      string `yaml:"store"`
	MaxPrompts int    `yaml:"max_prompts"`
}

type LogConfig struct {
	// File is the log path. Empty means aichat.log in the config directory.
	File  string `yaml:"file,omitempty"`
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: "gemini",
		Theme:    "auto",
		Markdown: true,
		Context: ContextConfig{
			Budget:          16000,
			Unit:            "chars",
			MaxMessageChars: 50000,
		},
		Network: NetworkConfig{
			ConnectTimeout:  Duration(llm.DefaultConnectTimeout),
			IdleTimeout:     Duration(llm.DefaultIdleTimeout),
			ValidateTimeout: Duration(llm.DefaultValidateTimeout),
		},
		Retry: RetryConfig{
			MaxAttempts:        3,
			InitialDelay:       Duration(time.Second),
			MaxDelay:           Duration(20 * time.Second),
			Multiplier:         2,
			Jitter:             0.2,
			RetryServiceErrors: true,
		},
		Credential: CredentialConfig{
			Store:      "keyring",
			MaxPrompts: 3,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Dir returns the aichat config directory ($XDG_CONFIG_HOME/aichat).
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path over the defaults. A missing file
// yields the defaults unless required is set.
func Load(path string, required bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it over the defaults.
func Parse(data []byte) (*Config, error) {
	errs, err := ValidateYAML(data)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Overrides are command-line values; empty fields leave the config as is.
type Overrides struct {
	Provider     string
	Model        string
	BaseURL      string
	SystemPrompt string
	Theme        string
	MemoryStore  bool
	Verbose      bool
}

// Resolve layers envVars and then flags over c (flags > env > file) and
// fills in the provider's default model. The result is validated.
func (c *Config) Resolve(envVars map[string]string, o Overrides) error {
	fileProvider := c.Provider

	if v := envVars["AICHAT_PROVIDER"]; v != "" {
		c.Provider = v
	}
	if v := envVars["AICHAT_MODEL"]; v != "" {
		c.Model = v
	}
	if v := envVars["AICHAT_BASE_URL"]; v != "" {
		c.BaseURL = v
	}
	if v := envVars["AICHAT_THEME"]; v != "" {
		c.Theme = v
	}

	if o.Provider != "" {
		c.Provider = o.Provider
	}
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if o.SystemPrompt != "" {
		c.SystemPrompt = o.SystemPrompt
	}
	if o.Theme != "" {
		c.Theme = o.Theme
	}
	if o.MemoryStore {
		c.Credential.Store = "memory"
	}
	if o.Verbose {
		c.Log.Level = "debug"
	}

	// A model or base URL from the file belongs to the file's provider.
	if c.Provider != fileProvider && o.Model == "" && envVars["AICHAT_MODEL"] == "" {
		c.Model = ""
	}
	if c.Provider != fileProvider && o.BaseURL == "" && envVars["AICHAT_BASE_URL"] == "" {
		c.BaseURL = ""
	}
	if c.Model == "" {
		c.Model = DefaultModel(c.Provider)
	}
	return c.Validate()
}

// Validate checks values that the schema cannot see (flags and env).
func (c *Config) Validate() error {
	if DefaultModel(c.Provider) == "" {
		return fmt.Errorf("unknown provider %q (want one of %s)", c.Provider, strings.Join(Providers, ", "))
	}
	switch c.Theme {
	case "auto", "dark", "light":
	default:
		return fmt.Errorf("unknown theme %q (want auto, dark or light)", c.Theme)
	}
	switch c.Context.Unit {
	case "chars", "tokens":
	default:
		return fmt.Errorf("unknown context unit %q (want chars or tokens)", c.Context.Unit)
	}
	switch c.Credential.Store {
	case "keyring", "memory":
	default:
		return fmt.Errorf("unknown credential store %q (want keyring or memory)", c.Credential.Store)
	}
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL %q must start with http:// or https://", c.BaseURL)
	}
	return nil
}

// LogPath returns the log file path.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName+".log"), nil
}

// ClientConfig returns the transport settings.
func (c *Config) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		BaseURL:         c.BaseURL,
		Model:           c.Model,
		MaxMessageChars: c.Context.MaxMessageChars,
		ConnectTimeout:  time.Duration(c.Network.ConnectTimeout),
		IdleTimeout:     time.Duration(c.Network.IdleTimeout),
		ValidateTimeout: time.Duration(c.Network.ValidateTimeout),
	}
}

// RetryPolicy returns the session retry policy.
func (c *Config) RetryPolicy() session.RetryPolicy {
	return session.RetryPolicy{
		MaxAttempts:        c.Retry.MaxAttempts,
		InitialDelay:       time.Duration(c.Retry.InitialDelay),
		MaxDelay:           time.Duration(c.Retry.MaxDelay),
		Multiplier:         c.Retry.Multiplier,
		Jitter:             c.Retry.Jitter,
		RetryServiceErrors: c.Retry.RetryServiceErrors,
	}
}

// Sizer returns the measure for the context budget. The token rank file is
// fetched within the connect timeout and cached under the config directory.
func (c *Config) Sizer() conversation.Sizer {
	if c.Context.Unit == "tokens" {
		var cacheDir string
		if dir, err := Dir(); err == nil {
			cacheDir = filepath.Join(dir, "cache")
		}
		return conversation.NewTokenSizer(time.Duration(c.Network.ConnectTimeout), cacheDir)
	}
	return conversation.CharSizer{}
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// EnvMap returns the process environment as a map.
func EnvMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
