package tui

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ConnRefused/AI-Chat-TUI/internal/tui/components"
	"github.com/ConnRefused/AI-Chat-TUI/render"
)

// secretPromptModel hosts a SecretInput as a standalone bubbletea program.
type secretPromptModel struct {
	input components.SecretInput
	width int
}

func newSecretPromptModel(styles *StyleSet, label string) secretPromptModel {
	return secretPromptModel{
		input: components.NewSecretInput(label, false, components.SecretInputStyles{
			Label:   styles.Title,
			Border:  styles.InputBorder,
			Error:   styles.ErrorTxt,
			KbdKey:  styles.KbdKey,
			KbdDesc: styles.KbdDesc,
			Accent:  styles.Theme.Accent,
		}),
		width: 80,
	}
}

func (m secretPromptModel) Init() tea.Cmd { return m.input.Init() }

func (m secretPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = ws.Width
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Done() {
		return m, tea.Quit
	}
	return m, cmd
}

func (m secretPromptModel) View() string {
	if m.input.Done() {
		// Leave nothing of the masked box behind.
		return ""
	}
	return m.input.View(m.width)
}

// readSecret runs a masked entry on in/out. Cancelling returns
// render.ErrInterrupted.
func readSecret(styles *StyleSet, label string, in io.Reader, out io.Writer) (string, error) {
	p := tea.NewProgram(newSecretPromptModel(styles, label), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("secret prompt: %w", err)
	}
	m := final.(secretPromptModel)
	if m.input.Cancelled() {
		return "", render.ErrInterrupted
	}
	return m.input.Value(), nil
}
