// Package providers implements llm.Client for the supported model APIs.
package providers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

var (
	errConnectTimeout = errors.New("timed out waiting for the service to respond")
	errIdleTimeout    = errors.New("timed out waiting for more of the reply")
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// terminalGrace bounds how long a terminal fragment waits for a reader after
// the caller cancelled.
const terminalGrace = time.Second

// decoder turns server-sent events into fragments.
type decoder interface {
	// event handles one data line of the named event (empty when the stream
	// does not name its events). A returned terminal fragment ends the
	// stream.
	event(name, data string) []llm.Fragment
	// eof returns the terminal fragment for a body that ended without one.
	eof() llm.Fragment
}

// watchdog cancels a request context with a cause when a deadline passes
// without being reset.
type watchdog struct {
	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelCauseFunc
}

func newWatchdog(cancel context.CancelCauseFunc) *watchdog {
	return &watchdog{cancel: cancel}
}

// arm (re)starts the deadline. A non-positive d disarms it.
func (w *watchdog) arm(d time.Duration, cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	if d <= 0 {
		w.timer = nil
		return
	}
	w.timer = time.AfterFunc(d, func() { w.cancel(cause) })
}

func (w *watchdog) stop() { w.arm(0, nil) }

// stream runs a streaming request in its own goroutine and relays decoded
// fragments. The returned channel always ends with exactly one terminal
// fragment and is then closed; the response body is closed on every path.
func stream(ctx context.Context, cfg llm.ClientConfig, newReq func(context.Context) (*http.Request, error), dec decoder) <-chan llm.Fragment {
	ch := make(chan llm.Fragment, 32)
	go func() {
		defer close(ch)
		reqCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		wd := newWatchdog(cancel)
		defer wd.stop()

		finish := func(f llm.Fragment) {
			if ctx.Err() == nil {
				select {
				case ch <- f:
					return
				case <-ctx.Done():
				}
			}
			if f.Err == nil || f.Err.Kind != llm.KindCancelled {
				f = llm.Fragment{Err: cancelledError(ctx)}
			}
			t := time.NewTimer(terminalGrace)
			defer t.Stop()
			select {
			case ch <- f:
			case <-t.C:
			}
		}

		req, err := newReq(reqCtx)
		if err != nil {
			finish(llm.Fragment{Err: &llm.StreamError{Kind: llm.KindService, Message: "building request: " + err.Error(), Err: err}})
			return
		}

		wd.arm(cfg.ConnectTimeout, errConnectTimeout)
		resp, err := cfg.HTTPClient.Do(req)
		wd.stop()
		if err != nil {
			finish(llm.Fragment{Err: transportError(ctx, reqCtx, err)})
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			wd.arm(cfg.IdleTimeout, errIdleTimeout)
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			wd.stop()
			if err != nil && (ctx.Err() != nil || context.Cause(reqCtx) != nil) {
				finish(llm.Fragment{Err: transportError(ctx, reqCtx, err)})
				return
			}
			finish(llm.Fragment{Err: llm.ErrorFromResponse(resp, body)})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		var eventName string
		for {
			wd.arm(cfg.IdleTimeout, errIdleTimeout)
			if !scanner.Scan() {
				break
			}
			line := scanner.Text()
			if line == "" {
				eventName = ""
				continue
			}
			if after, ok := strings.CutPrefix(line, "event:"); ok {
				eventName = strings.TrimSpace(after)
				continue
			}
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			for _, f := range dec.event(eventName, strings.TrimPrefix(data, " ")) {
				if f.Terminal() {
					wd.stop()
					finish(f)
					return
				}
				select {
				case ch <- f:
				case <-ctx.Done():
					finish(llm.Fragment{Err: cancelledError(ctx)})
					return
				}
			}
		}
		wd.stop()

		if err := scanner.Err(); err != nil {
			finish(llm.Fragment{Err: transportError(ctx, reqCtx, err)})
			return
		}
		if ctx.Err() != nil {
			finish(llm.Fragment{Err: cancelledError(ctx)})
			return
		}
		finish(dec.eof())
	}()
	return ch
}

// transportError classifies a failure to send a request or read its body.
// parent is the caller's context; reqCtx carries the watchdog's cause.
func transportError(parent, reqCtx context.Context, err error) *llm.StreamError {
	if parent.Err() != nil {
		return cancelledError(parent)
	}
	if cause := context.Cause(reqCtx); errors.Is(cause, errConnectTimeout) || errors.Is(cause, errIdleTimeout) {
		return &llm.StreamError{Kind: llm.KindNetwork, Message: cause.Error(), Err: cause}
	}
	return &llm.StreamError{Kind: llm.KindNetwork, Message: err.Error(), Err: err}
}

func cancelledError(ctx context.Context) *llm.StreamError {
	return &llm.StreamError{Kind: llm.KindCancelled, Message: "request cancelled", Err: context.Cause(ctx)}
}

// truncatedStream is the terminal fragment for a body that ended early.
func truncatedStream() llm.Fragment {
	return llm.Fragment{Err: llm.NewError(llm.KindNetwork, "connection closed before the reply was complete")}
}
