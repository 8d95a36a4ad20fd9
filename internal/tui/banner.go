package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ConnRefused/AI-Chat-TUI/internal/tui/components"
)

// RenderBanner returns the header shown when a chat starts.
func RenderBanner(styles *StyleSet, version, provider, model string, width int) string {
	if version == "" {
		version = "dev"
	}

	title := styles.Banner.Render("✦  A I   C H A T") + "  " + styles.DimTxt.Render("v"+version)
	pill := styles.ProviderPill.Render(provider) + " " + styles.AccentTxt.Render(model)
	subtitle := styles.Subtitle.Render("Type a message and press Enter. /help lists commands; an empty line exits.")

	dividerWidth := width - 4
	if dividerWidth < 20 {
		dividerWidth = 20
	}
	if dividerWidth > 60 {
		dividerWidth = 60
	}
	divider := lipgloss.NewStyle().
		Foreground(styles.Theme.Border).
		Render(strings.Repeat("─", dividerWidth))

	hints := components.NewKbdHint(styles.KbdKey, styles.KbdDesc)
	hints.Bindings = components.ChatHints()

	return fmt.Sprintf("  %s\n  %s\n  %s\n%s\n  %s\n\n", title, pill, subtitle, hints.View(), divider)
}
