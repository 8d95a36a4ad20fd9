// Package tui renders the chat in a terminal.
package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"github.com/ConnRefused/AI-Chat-TUI/render"
)

type lineResult struct {
	line string
	err  error
}

// Terminal implements render.Sink. On a TTY it uses a masked bubbletea
// entry for secrets, promptui for questions, erases discarded replies in
// place and re-renders finished replies as markdown; otherwise it falls back
// to plain line I/O.
//
// While a Terminal is listening it owns SIGINT for the process: an interrupt
// goes to the current prompt or cancel context, and is dropped when neither
// is waiting.
type Terminal struct {
	in     *bufio.Reader
	inFile *os.File
	out    io.Writer
	outFd  int
	tty    bool
	styles *StyleSet
	md     *Markdown
	// AssistantName labels replies.
	AssistantName string

	// pending is a line read still in flight after an interrupted prompt.
	pending chan lineResult
	// shown is the text of the reply currently on screen, label included.
	shown strings.Builder
	// reply is the model text of the current reply.
	reply   strings.Builder
	inReply bool

	sigOnce sync.Once
	sigCh   chan os.Signal
	sigMu   sync.Mutex
	sigSubs map[int]func()
	sigNext int
}

// NewTerminal creates a Terminal on the process's stdin and stdout. With
// markdown set, a TTY shows replies and the transcript rendered as markdown.
func NewTerminal(styles *StyleSet, markdown bool) *Terminal {
	t := &Terminal{
		in:            bufio.NewReader(os.Stdin),
		inFile:        os.Stdin,
		out:           os.Stdout,
		outFd:         int(os.Stdout.Fd()),
		styles:        styles,
		AssistantName: "AI",
	}
	t.tty = term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(t.outFd)
	if markdown && t.tty {
		// Plain text is an acceptable fallback.
		t.md, _ = NewMarkdown(styles.Theme, t.Width())
	}
	t.listen()
	return t
}

// NewPipeTerminal creates a Terminal in plain line mode on in and out.
func NewPipeTerminal(in io.Reader, out io.Writer, styles *StyleSet) *Terminal {
	return &Terminal{
		in:            bufio.NewReader(in),
		out:           out,
		outFd:         -1,
		styles:        styles,
		AssistantName: "AI",
	}
}

// IsTTY reports whether the terminal is interactive.
func (t *Terminal) IsTTY() bool { return t.tty }

// Width returns the terminal width, or 80 when unknown.
func (t *Terminal) Width() int {
	if t.outFd >= 0 {
		if w, _, err := term.GetSize(t.outFd); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

// Print writes s as is.
func (t *Terminal) Print(s string) { fmt.Fprint(t.out, s) }

// ReadLine implements render.Prompter.
func (t *Terminal) ReadLine(prompt string, echo bool) (string, error) {
	if !echo {
		return t.readSecret(prompt)
	}
	fmt.Fprint(t.out, t.styles.UserLabel.Render(prompt)+t.styles.DimTxt.Render(" › "))
	return t.readLine()
}

// readLine waits for a line or an interrupt. A read abandoned by an
// interrupt is picked up by the next call.
func (t *Terminal) readLine() (string, error) {
	if t.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			s, err := t.in.ReadString('\n')
			ch <- lineResult{line: s, err: err}
		}()
		t.pending = ch
	}

	sig := make(chan struct{}, 1)
	unsubscribe := t.onInterrupt(func() {
		select {
		case sig <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	select {
	case r := <-t.pending:
		t.pending = nil
		line := strings.TrimRight(r.line, "\r\n")
		if r.err != nil {
			if errors.Is(r.err, io.EOF) && line != "" {
				return line, nil
			}
			return "", r.err
		}
		return line, nil
	case <-sig:
		fmt.Fprintln(t.out)
		return "", render.ErrInterrupted
	}
}

func (t *Terminal) readSecret(prompt string) (string, error) {
	if !t.tty {
		fmt.Fprint(t.out, prompt+": ")
		return t.readLine()
	}
	s, err := readSecret(t.styles, prompt, t.inFile, t.out)
	if err == nil || errors.Is(err, render.ErrInterrupted) {
		return s, err
	}
	// No usable TUI; read without echo instead.
	fmt.Fprint(t.out, prompt+": ")
	b, rerr := term.ReadPassword(int(t.inFile.Fd()))
	fmt.Fprintln(t.out)
	if rerr != nil {
		return "", fmt.Errorf("reading secret: %w", rerr)
	}
	return string(b), nil
}

// Confirm implements render.Prompter.
func (t *Terminal) Confirm(label string) (bool, error) {
	if t.tty {
		p := promptui.Prompt{Label: label, IsConfirm: true}
		_, err := p.Run()
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, promptui.ErrAbort):
			return false, nil
		case errors.Is(err, promptui.ErrInterrupt):
			return false, render.ErrInterrupted
		case errors.Is(err, promptui.ErrEOF):
			return false, io.EOF
		default:
			return false, fmt.Errorf("prompt %q failed: %w", label, err)
		}
	}

	fmt.Fprintf(t.out, "%s [y/N]: ", label)
	line, err := t.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Choose implements render.Prompter.
func (t *Terminal) Choose(label string, options []string) (int, error) {
	if t.tty {
		s := promptui.Select{Label: label, Items: options}
		idx, _, err := s.Run()
		switch {
		case err == nil:
			return idx, nil
		case errors.Is(err, promptui.ErrInterrupt):
			return -1, render.ErrInterrupted
		case errors.Is(err, promptui.ErrEOF):
			return -1, io.EOF
		default:
			return -1, fmt.Errorf("prompt %q failed: %w", label, err)
		}
	}

	fmt.Fprintln(t.out, label)
	for i, o := range options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, o)
	}
	fmt.Fprintf(t.out, "Choose [1-%d]: ", len(options))
	line, err := t.readLine()
	if err != nil {
		return -1, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(options) {
		return -1, fmt.Errorf("invalid choice %q", strings.TrimSpace(line))
	}
	return n - 1, nil
}

// WriteNotice implements render.Prompter.
func (t *Terminal) WriteNotice(level render.Level, msg string) {
	t.breakReplyLine()
	var line string
	switch level {
	case render.LevelSuccess:
		line = t.styles.SuccessTxt.Render("✓ " + msg)
	case render.LevelWarn:
		line = t.styles.WarningTxt.Render("! " + msg)
	case render.LevelError:
		line = t.styles.ErrorTxt.Render("✗ " + msg)
	default:
		line = t.styles.SecondaryTxt.Render(msg)
	}
	fmt.Fprintln(t.out, line)
}

// NotifyCancel implements render.Prompter: the returned context ends when
// the user presses Ctrl+C.
func (t *Terminal) NotifyCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancel(ctx)
	unsubscribe := t.onInterrupt(cancel)
	return cctx, func() {
		unsubscribe()
		cancel()
	}
}

// listen takes over SIGINT for the life of the Terminal.
func (t *Terminal) listen() {
	t.sigOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		t.sigCh = ch
		go func() {
			for range ch {
				t.interrupt()
			}
		}()
	})
}

// onInterrupt registers f to run on SIGINT until the returned func is
// called.
func (t *Terminal) onInterrupt(f func()) func() {
	t.listen()

	t.sigMu.Lock()
	defer t.sigMu.Unlock()
	if t.sigSubs == nil {
		t.sigSubs = make(map[int]func())
	}
	id := t.sigNext
	t.sigNext++
	t.sigSubs[id] = f
	return func() {
		t.sigMu.Lock()
		defer t.sigMu.Unlock()
		delete(t.sigSubs, id)
	}
}

// interrupt delivers one interrupt to every current subscriber.
func (t *Terminal) interrupt() {
	t.sigMu.Lock()
	subs := make([]func(), 0, len(t.sigSubs))
	for _, f := range t.sigSubs {
		subs = append(subs, f)
	}
	t.sigMu.Unlock()
	for _, f := range subs {
		f()
	}
}

// Close stops listening for SIGINT and restores its default handling.
func (t *Terminal) Close() {
	t.sigOnce.Do(func() {})
	if t.sigCh != nil {
		signal.Stop(t.sigCh)
		close(t.sigCh)
		t.sigCh = nil
	}
}

func (t *Terminal) replyLabel() string {
	return t.styles.AssistantLabel.Render(t.AssistantName) + t.styles.DimTxt.Render(" › ")
}

// BeginReply implements render.Sink.
func (t *Terminal) BeginReply() {
	label := t.replyLabel()
	fmt.Fprint(t.out, label)
	t.shown.Reset()
	t.shown.WriteString(ansi.Strip(label))
	t.reply.Reset()
	t.inReply = true
}

// WriteFragment implements render.Sink.
func (t *Terminal) WriteFragment(text string) {
	fmt.Fprint(t.out, text)
	t.shown.WriteString(text)
	t.reply.WriteString(text)
}

// EndReply implements render.Sink. With markdown enabled the streamed text
// is replaced by its rendered form.
func (t *Terminal) EndReply() {
	if t.tty && t.md != nil && strings.TrimSpace(t.reply.String()) != "" {
		fmt.Fprint(t.out, eraseLines(t.shown.String(), t.Width()))
		fmt.Fprintf(t.out, "%s\n%s\n", t.replyLabel(), t.md.Render(t.reply.String()))
	} else {
		t.breakReplyLine()
	}
	fmt.Fprintln(t.out)
	t.inReply = false
	t.shown.Reset()
	t.reply.Reset()
}

// DiscardReply implements render.Sink. On a TTY the partial reply is erased;
// otherwise a marker line says it was dropped.
func (t *Terminal) DiscardReply() {
	if !t.inReply {
		return
	}
	if t.tty {
		fmt.Fprint(t.out, eraseLines(t.shown.String(), t.Width()))
	} else {
		t.breakReplyLine()
		fmt.Fprintln(t.out, t.styles.DimTxt.Render("[partial reply discarded]"))
	}
	t.inReply = false
	t.shown.Reset()
	t.reply.Reset()
}

// WriteTranscript implements render.Sink.
func (t *Terminal) WriteTranscript(entries []render.Entry) {
	t.breakReplyLine()
	for _, e := range entries {
		content := e.Content
		var label string
		if e.Role == "user" {
			label = t.styles.UserLabel.Render("You")
		} else {
			label = t.styles.AssistantLabel.Render(t.AssistantName)
			content = t.md.Render(content)
		}
		fmt.Fprintf(t.out, "%s\n%s\n\n", label, content)
	}
}

// breakReplyLine ends a partially written reply line so the next output
// starts in column zero.
func (t *Terminal) breakReplyLine() {
	if !t.inReply {
		return
	}
	s := t.shown.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		fmt.Fprintln(t.out)
		t.shown.WriteString("\n")
	}
}

// eraseLines returns the escape sequence that clears the screen rows taken
// by shown, leaving the cursor at the start of the first of them.
func eraseLines(shown string, width int) string {
	if width <= 0 {
		width = 80
	}
	rows := 0
	lines := strings.Split(shown, "\n")
	for i, l := range lines {
		w := ansi.StringWidth(l)
		if i == len(lines)-1 && w == 0 {
			// Cursor sits on an empty row after a trailing newline.
			rows++
			continue
		}
		rows += max(1, (w+width-1)/width)
	}

	var b strings.Builder
	b.WriteString("\r" + ansi.EraseEntireLine)
	for i := 1; i < rows; i++ {
		b.WriteString(ansi.CursorUp(1) + ansi.EraseEntireLine)
	}
	b.WriteString("\r")
	return b.String()
}
