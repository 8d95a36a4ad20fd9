package credential

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ConnRefused/AI-Chat-TUI/internal/logging"
	"github.com/ConnRefused/AI-Chat-TUI/render"
)

var (
	// ErrRejected is matched (via errors.Is) by validation errors that mean
	// the remote service refused the key, as opposed to being unreachable.
	ErrRejected = errors.New("credential rejected")
	// ErrAborted ends acquisition without a usable key.
	ErrAborted = errors.New("credential acquisition aborted")
)

// State is a step of the acquisition state machine.
type State int

const (
	StateLoading State = iota
	StateValidating
	StatePrompting
	StatePersisting
	StateReady
	StateAbort
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateValidating:
		return "validating"
	case StatePrompting:
		return "prompting"
	case StatePersisting:
		return "persisting"
	case StateReady:
		return "ready"
	case StateAbort:
		return "abort"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source records where the key in hand came from.
type Source int

const (
	SourceNone Source = iota
	SourceEnv
	SourceStore
	SourcePrompt
)

func (s Source) String() string {
	switch s {
	case SourceEnv:
		return "environment"
	case SourceStore:
		return "keyring"
	case SourcePrompt:
		return "prompt"
	default:
		return "none"
	}
}

// Validator confirms a key with the remote service using a cheap call.
type Validator interface {
	Validate(ctx context.Context, s Secret) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, s Secret) error

func (f ValidatorFunc) Validate(ctx context.Context, s Secret) error { return f(ctx, s) }

const defaultMaxPrompts = 3

// Flow obtains a usable key: environment, then store, then interactive
// entry, validating each candidate before it is handed out.
type Flow struct {
	Store     Store
	Validator Validator
	Prompter  render.Prompter
	Logger    logging.Logger

	// Label names the service in prompts, e.g. "Google Gemini".
	Label string
	// EnvSecret is a key supplied through EnvName. It is validated first and
	// never persisted or cleared.
	EnvSecret Secret
	EnvName   string
	// MaxPrompts bounds interactive entries per pass. Zero means 3.
	MaxPrompts int

	// OnTransition, if set, observes every state change.
	OnTransition func(from, to State)
}

// Acquire runs the flow from Loading. It returns ErrAborted when the user
// gives up; any other error is a terminal I/O failure.
func (f *Flow) Acquire(ctx context.Context) (Secret, Source, error) {
	return f.run(ctx, StateLoading, false)
}

// Login skips stored and environment keys, prompts for a new one and saves it
// without asking once it validates.
func (f *Flow) Login(ctx context.Context) (Secret, error) {
	s, _, err := f.run(ctx, StatePrompting, true)
	return s, err
}

// Forget deletes the stored key.
func (f *Flow) Forget() error {
	return f.Store.Clear()
}

func (f *Flow) run(ctx context.Context, start State, alwaysPersist bool) (Secret, Source, error) {
	var (
		cand    Secret
		src     Source
		prompts int
		envUsed = start != StateLoading
	)
	state := start
	f.logger().Debug("credential flow started", map[string]any{"state": state.String()})

	for {
		next := state
		switch state {
		case StateLoading:
			if !envUsed && !f.EnvSecret.IsZero() {
				envUsed = true
				cand, src = f.EnvSecret, SourceEnv
				next = StateValidating
				break
			}
			s, ok, err := f.Store.Get()
			switch {
			case err != nil:
				f.logger().Warn("credential store read failed", map[string]any{"error": err})
				f.Prompter.WriteNotice(render.LevelWarn, "Could not read the system keyring; the key will not be remembered.")
				next = StatePrompting
			case !ok:
				next = StatePrompting
			default:
				cand, src = s, SourceStore
				next = StateValidating
			}

		case StateValidating:
			next = f.validate(ctx, &cand, src)

		case StatePrompting:
			if prompts >= f.maxPrompts() {
				f.Prompter.WriteNotice(render.LevelError, "Too many rejected keys.")
				next = StateAbort
				break
			}
			prompts++
			line, err := f.Prompter.ReadLine(fmt.Sprintf("Enter your %s API key", f.label()), false)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, render.ErrInterrupted) {
					next = StateAbort
					break
				}
				return Secret{}, SourceNone, fmt.Errorf("reading API key: %w", err)
			}
			s := NewSecret(line)
			if s.IsZero() {
				f.Prompter.WriteNotice(render.LevelError, fmt.Sprintf("No API key entered for %s.", f.label()))
				next = StateAbort
				break
			}
			cand, src = s, SourcePrompt
			next = StateValidating

		case StatePersisting:
			f.persist(cand, alwaysPersist)
			next = StateReady

		case StateReady:
			f.logger().Info("credential ready", map[string]any{"source": src.String()})
			return cand, src, nil

		case StateAbort:
			f.logger().Info("credential flow aborted", nil)
			return Secret{}, SourceNone, ErrAborted
		}

		if next == StateReady && src == SourcePrompt && state == StateValidating {
			next = StatePersisting
		}
		f.transition(state, next)
		state = next
	}
}

func (f *Flow) validate(ctx context.Context, cand *Secret, src Source) State {
	vctx, stop := f.Prompter.NotifyCancel(ctx)
	err := f.Validator.Validate(vctx, *cand)
	interrupted := vctx.Err() != nil
	stop()

	switch {
	case err == nil:
		return StateReady

	case errors.Is(err, ErrRejected):
		f.logger().Warn("credential rejected", map[string]any{"source": src.String()})
		switch src {
		case SourceStore:
			if cerr := f.Store.Clear(); cerr != nil {
				f.logger().Warn("clearing rejected credential failed", map[string]any{"error": cerr})
			}
			f.Prompter.WriteNotice(render.LevelWarn, "The saved API key was rejected and has been removed.")
		case SourceEnv:
			f.Prompter.WriteNotice(render.LevelWarn, fmt.Sprintf("The API key from $%s was rejected.", f.EnvName))
		default:
			f.Prompter.WriteNotice(render.LevelError, "That API key was rejected. Please check it and try again.")
		}
		if src == SourceEnv {
			*cand = Secret{}
			return StateLoading
		}
		cand.Wipe()
		return StatePrompting

	case interrupted:
		return StateAbort

	default:
		f.logger().Warn("credential validation failed", map[string]any{"error": err})
		idx, cerr := f.Prompter.Choose(fmt.Sprintf("Could not reach %s: %v", f.label(), err), []string{"Retry", "Abort"})
		if cerr != nil || idx != 0 {
			return StateAbort
		}
		return StateValidating
	}
}

func (f *Flow) persist(s Secret, always bool) {
	save := always
	if !save {
		ok, err := f.Prompter.Confirm("Remember this key in the system keyring")
		if err != nil {
			f.logger().Debug("persist confirmation failed", map[string]any{"error": err})
		}
		save = ok && err == nil
	}
	if !save {
		f.Prompter.WriteNotice(render.LevelInfo, "API key not saved. It will be used for this session only.")
		return
	}
	if err := f.Store.Set(s); err != nil {
		f.logger().Warn("credential store write failed", map[string]any{"error": err})
		f.Prompter.WriteNotice(render.LevelWarn, "Could not save the key to the system keyring; it will be used for this session only.")
		return
	}
	f.Prompter.WriteNotice(render.LevelSuccess, fmt.Sprintf("API key for %s saved.", f.label()))
}

func (f *Flow) transition(from, to State) {
	if from == to {
		return
	}
	f.logger().Debug("credential state", map[string]any{"from": from.String(), "to": to.String()})
	if f.OnTransition != nil {
		f.OnTransition(from, to)
	}
}

func (f *Flow) maxPrompts() int {
	if f.MaxPrompts <= 0 {
		return defaultMaxPrompts
	}
	return f.MaxPrompts
}

func (f *Flow) label() string {
	if f.Label == "" {
		return "model service"
	}
	return f.Label
}

func (f *Flow) logger() logging.Logger {
	if f.Logger == nil {
		return logging.Nop()
	}
	return f.Logger
}
