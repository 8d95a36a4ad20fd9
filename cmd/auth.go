package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ConnRefused/AI-Chat-TUI/config"
	"github.com/ConnRefused/AI-Chat-TUI/credential"
	"github.com/ConnRefused/AI-Chat-TUI/llm/providers"
	"github.com/ConnRefused/AI-Chat-TUI/render"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the saved API key",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Enter, validate and save an API key",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the saved API key",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key would come from",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if !providers.RequiresKey(a.cfg.Provider) {
		a.term.WriteNotice(render.LevelInfo, fmt.Sprintf("%s does not use an API key.", config.Label(a.cfg.Provider)))
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	flow := a.flow()
	defer flow.EnvSecret.Wipe()

	key, err := flow.Login(ctx)
	if err != nil {
		return err
	}
	key.Wipe()
	a.logger.Info("login complete", nil)
	return nil
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("deleting saved key: %w", err)
	}
	a.logger.Info("logout complete", nil)
	a.term.WriteNotice(render.LevelSuccess, fmt.Sprintf("Saved API key for %s deleted.", config.Label(a.cfg.Provider)))
	return nil
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Provider:  %s (%s)\n", config.Label(a.cfg.Provider), a.cfg.Model)

	if !providers.RequiresKey(a.cfg.Provider) {
		fmt.Fprintln(out, "API key:   not required")
		return nil
	}

	if _, name := config.ResolveAPIKey(a.cfg.Provider, a.env); name != "" {
		fmt.Fprintf(out, "Env key:   set ($%s)\n", name)
	} else {
		fmt.Fprintln(out, "Env key:   not set")
	}

	s, ok, err := a.store.Get()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Saved key: unavailable (%v)\n", err)
	case ok:
		s.Wipe()
		fmt.Fprintf(out, "Saved key: present (%s)\n", storeName(a.store))
	default:
		fmt.Fprintf(out, "Saved key: none (%s)\n", storeName(a.store))
	}
	return nil
}

func storeName(s credential.Store) string {
	if k, ok := s.(*credential.KeyringStore); ok {
		return fmt.Sprintf("keyring %s/%s", k.Service, k.Account)
	}
	return "memory"
}
