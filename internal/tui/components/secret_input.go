package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SecretInputStyles groups the styles a SecretInput renders with.
type SecretInputStyles struct {
	Label   lipgloss.Style
	Border  lipgloss.Style
	Error   lipgloss.Style
	KbdKey  lipgloss.Style
	KbdDesc lipgloss.Style
	Accent  lipgloss.Color
}

// SecretInput is a masked text entry. It ends either submitted or cancelled.
type SecretInput struct {
	Label     string
	input     textinput.Model
	done      bool
	cancelled bool
	err       string
	allowSkip bool
	styles    SecretInputStyles
	kbd       KbdHint
}

// NewSecretInput creates a new masked input component.
func NewSecretInput(label string, allowSkip bool, styles SecretInputStyles) SecretInput {
	ti := textinput.New()
	ti.Placeholder = "paste key here"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Focus()
	ti.CharLimit = 512
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(styles.Accent)

	hints := InputHints()
	if allowSkip {
		hints = append(hints, KeyBinding{Key: "⏎", Desc: "(empty) skip"})
	}

	kbd := NewKbdHint(styles.KbdKey, styles.KbdDesc)
	kbd.Bindings = hints

	return SecretInput{
		Label:     label,
		input:     ti,
		allowSkip: allowSkip,
		styles:    styles,
		kbd:       kbd,
	}
}

// Init starts the cursor blinking.
func (s SecretInput) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (s SecretInput) Update(msg tea.Msg) (SecretInput, tea.Cmd) {
	if s.done {
		return s, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			val := strings.TrimSpace(s.input.Value())
			if val == "" && !s.allowSkip {
				s.err = "key is required (esc to cancel)"
				return s, nil
			}
			s.done = true
			s.err = ""
			return s, nil
		case "esc", "ctrl+c", "ctrl+d":
			s.done = true
			s.cancelled = true
			return s, nil
		}
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	s.err = ""
	return s, cmd
}

// View renders the secret input.
func (s SecretInput) View(width int) string {
	var out string

	out += "\n  " + s.styles.Label.Render(s.Label) + "\n\n"

	inputWidth := width - 8
	if inputWidth < 20 {
		inputWidth = 20
	}
	s.input.Width = inputWidth

	out += "  " + s.styles.Border.Width(inputWidth).Render(s.input.View()) + "\n"
	if s.err != "" {
		out += "  " + s.styles.Error.Render("✗ "+s.err) + "\n"
	}

	out += "\n" + s.kbd.View()
	return out
}

// Done returns true when input is submitted or cancelled.
func (s SecretInput) Done() bool {
	return s.done
}

// Cancelled reports whether the user backed out.
func (s SecretInput) Cancelled() bool {
	return s.cancelled
}

// Value returns the current input value.
func (s SecretInput) Value() string {
	return strings.TrimSpace(s.input.Value())
}
