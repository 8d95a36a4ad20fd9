package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ConnRefused/AI-Chat-TUI/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config and log file paths",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfgFile
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	logPath, err := cfg.LogPath()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config: %s\nlog:    %s\n", path, logPath)
	return nil
}
