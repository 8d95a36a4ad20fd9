// Package cmd implements the aichat CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	providerFlag  string
	modelFlag     string
	baseURLFlag   string
	systemFlag    string
	themeOverride string
	noKeyring     bool
	verbose       bool

	appVersion = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "aichat",
	Short: "Chat with an AI model in your terminal",
	Long: "aichat streams replies from Gemini, OpenAI, Anthropic or a local Ollama server.\n" +
		"The API key is taken from the environment or the system keyring, or asked for once.",
	Args:          cobra.NoArgs,
	RunE:          runChat,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default $XDG_CONFIG_HOME/aichat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "model provider: gemini, openai, anthropic or ollama")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "model name (default depends on the provider)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "override the provider API base URL")
	rootCmd.PersistentFlags().StringVar(&themeOverride, "theme", "", "TUI color theme: dark, light, or auto")
	rootCmd.PersistentFlags().BoolVar(&noKeyring, "no-keyring", false, "keep the API key in memory only")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write debug entries to the log file")
	rootCmd.Flags().StringVarP(&systemFlag, "system", "s", "", "system prompt sent with every request")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(configCmd)
}

// SetVersionInfo sets the version and commit for display.
func SetVersionInfo(version, commit string) {
	appVersion = version
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("aichat %s (commit: %s)\n", version, commit))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
