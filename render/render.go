// Package render defines the contract between the session engine and the
// terminal. The engine never writes escape sequences itself; everything
// visible goes through a Sink.
package render

import (
	"context"
	"errors"
)

// Level classifies a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ErrInterrupted is returned by ReadLine when the user pressed the interrupt
// key at the prompt. End of input is reported as io.EOF.
var ErrInterrupted = errors.New("input interrupted")

// Prompter is the interactive half of the terminal.
type Prompter interface {
	// ReadLine shows prompt and reads one line. With echo false the typed
	// characters are not shown.
	ReadLine(prompt string, echo bool) (string, error)
	// Confirm asks a yes/no question.
	Confirm(label string) (bool, error)
	// Choose presents options and returns the chosen index.
	Choose(label string, options []string) (int, error)
	WriteNotice(level Level, msg string)
	// NotifyCancel derives a context that is cancelled when the user presses
	// the interrupt key. Callers must call the returned CancelFunc.
	NotifyCancel(ctx context.Context) (context.Context, context.CancelFunc)
}

// Entry is one line of a transcript.
type Entry struct {
	Role    string
	Content string
}

// Sink receives a streamed reply.
//
// A reply is bracketed by BeginReply and exactly one of EndReply or
// DiscardReply. DiscardReply removes whatever fragments of the current reply
// were shown.
type Sink interface {
	Prompter
	BeginReply()
	WriteFragment(text string)
	EndReply()
	DiscardReply()
	WriteTranscript(entries []Entry)
}
