package session

import (
	"fmt"
	"strings"

	"github.com/ConnRefused/AI-Chat-TUI/render"
)

type command struct {
	name    string
	aliases []string
	help    string
	run     func(l *Loop, args string) (quit bool, err error)
}

var commands []command

// Assigned in init because /help lists the table it belongs to.
func init() {
	commands = []command{
		{name: "/help", help: "Show this help", run: (*Loop).cmdHelp},
		{name: "/clear", help: "Start a new conversation", run: (*Loop).cmdClear},
		{name: "/history", help: "Show the conversation so far", run: (*Loop).cmdHistory},
		{name: "/logout", help: "Forget the saved API key", run: (*Loop).cmdLogout},
		{name: "/quit", aliases: []string{"/exit"}, help: "Leave the chat", run: func(*Loop, string) (bool, error) { return true, nil }},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
		for _, a := range c.aliases {
			if a == name {
				return c, true
			}
		}
	}
	return command{}, false
}

// runCommand executes a slash command line.
func (l *Loop) runCommand(line string) (bool, error) {
	name, args, _ := strings.Cut(line, " ")
	c, ok := lookupCommand(strings.ToLower(name))
	if !ok {
		l.sink.WriteNotice(render.LevelWarn, fmt.Sprintf("Unknown command %s. Type /help for a list.", name))
		return false, nil
	}
	l.logger.Debug("command", map[string]any{"name": c.name})
	return c.run(l, strings.TrimSpace(args))
}

func (l *Loop) cmdHelp(string) (bool, error) {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range commands {
		names := c.name
		if len(c.aliases) > 0 {
			names += ", " + strings.Join(c.aliases, ", ")
		}
		fmt.Fprintf(&b, "\n  %-16s %s", names, c.help)
	}
	b.WriteString("\nPress Ctrl+C while a reply is streaming to stop it. An empty line exits.")
	l.sink.WriteNotice(render.LevelInfo, b.String())
	return false, nil
}

func (l *Loop) cmdClear(string) (bool, error) {
	l.conv.Reset()
	l.sink.WriteNotice(render.LevelSuccess, "Conversation cleared.")
	return false, nil
}

func (l *Loop) cmdHistory(string) (bool, error) {
	turns := l.conv.Turns()
	if len(turns) == 0 {
		l.sink.WriteNotice(render.LevelInfo, "No messages yet.")
		return false, nil
	}
	entries := make([]render.Entry, len(turns))
	for i, t := range turns {
		entries[i] = render.Entry{Role: string(t.Role), Content: t.Content}
	}
	l.sink.WriteTranscript(entries)
	return false, nil
}

func (l *Loop) cmdLogout(string) (bool, error) {
	if l.logout == nil {
		l.sink.WriteNotice(render.LevelWarn, "No saved key to forget.")
		return false, nil
	}
	if err := l.logout(); err != nil {
		l.logger.Warn("logout failed", map[string]any{"error": err})
		l.sink.WriteNotice(render.LevelError, fmt.Sprintf("Could not remove the saved key: %v", err))
		return false, nil
	}
	l.sink.WriteNotice(render.LevelSuccess, "Saved API key removed. The current session keeps working until you quit.")
	return false, nil
}
