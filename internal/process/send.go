package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"
)

// SendAndReceive writes input (plus a line terminator) to the worker, closes
// its input stream to signal end-of-turn, and waits for a complete response.
// Completion is decided by the first of: a structured completion record, the
// idle timeout after displayable output, the legacy end marker, process
// exit, or the max-timeout safety net (which force-stops the worker and
// fails the call).
//
// Only one send may be outstanding per worker; a second call fails fast with
// ErrSendInFlight.
func (c *Channel) SendAndReceive(ctx context.Context, input string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return Result{}, ErrNotStarted
	}
	if c.inFlight {
		c.mu.Unlock()
		return Result{}, ErrSendInFlight
	}
	c.inFlight = true
	cancelTurn := make(chan struct{})
	c.cancelTurn = cancelTurn
	stdin := c.stdin
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.cancelTurn = nil
		c.mu.Unlock()
	}()

	// A worker that has already answered and exited may have had its stdin
	// pipe closed by Wait before we get here; the response is still sitting
	// in the pending buffer, so a closed pipe is not a failed turn.
	if stdin != nil {
		if _, err := fmt.Fprintln(stdin, input); err != nil && !inputGone(err) {
			return Result{}, fmt.Errorf("write input: %w", err)
		}
		if err := stdin.Close(); err != nil && !inputGone(err) {
			return Result{}, fmt.Errorf("close input: %w", err)
		}
		c.mu.Lock()
		c.stdin = nil
		c.mu.Unlock()
	}

	return c.receive(ctx, opts, cancelTurn)
}

// inputGone reports whether a stdin write or close failed only because the
// worker is already gone: Wait closes the pipe when the process exits, and a
// dead reader raises EPIPE.
func inputGone(err error) bool {
	return errors.Is(err, fs.ErrClosed) || errors.Is(err, syscall.EPIPE)
}

// receive races the three completion watchers (structured detection, idle
// timeout, max timeout) plus cancellation; the first to fire wins.
func (c *Channel) receive(ctx context.Context, opts Options, cancelTurn <-chan struct{}) (Result, error) {
	det := newDetector(opts)

	maxTimer := time.NewTimer(opts.MaxTimeout)
	defer maxTimer.Stop()

	// The idle timer stays disarmed until the first displayable output.
	idleTimer := time.NewTimer(opts.MaxTimeout)
	idleTimer.Stop()
	defer idleTimer.Stop()

	for {
		lines, exited, waitErr := c.takePending()
		for _, line := range lines {
			if reason, done := det.feed(line); done {
				return Result{Text: det.text(), FinishReason: reason}, nil
			}
		}
		if len(lines) > 0 && det.sawDisplayable() {
			resetTimer(idleTimer, opts.IdleTimeout)
		}

		if exited {
			if det.sawDisplayable() {
				return Result{Text: det.text(), FinishReason: FinishProcessExit}, nil
			}
			if waitErr != nil {
				if stderr := c.Stderr(); stderr != "" {
					return Result{}, fmt.Errorf("worker exited without output: %w; stderr: %s", waitErr, stderr)
				}
				return Result{}, fmt.Errorf("worker exited without output: %w", waitErr)
			}
			return Result{}, fmt.Errorf("worker exited without output")
		}

		select {
		case <-c.notify:
		case <-idleTimer.C:
			return Result{Text: det.text(), FinishReason: FinishIdleTimeout}, nil
		case <-maxTimer.C:
			c.forceStop()
			return Result{}, fmt.Errorf("%w after %s", ErrMaxTimeout, opts.MaxTimeout)
		case <-cancelTurn:
			return Result{}, ErrSendCancelled
		case <-ctx.Done():
			c.forceStop()
			return Result{}, fmt.Errorf("send aborted: %w", ctx.Err())
		}
	}
}

// CancelSend aborts an in-flight send with ErrSendCancelled and force-stops
// the worker. It is a no-op when nothing is in flight.
func (c *Channel) CancelSend() bool {
	c.mu.Lock()
	cancelTurn := c.cancelTurn
	c.cancelTurn = nil
	c.mu.Unlock()

	if cancelTurn == nil {
		return false
	}
	close(cancelTurn)
	c.forceStop()
	return true
}

// resetTimer safely re-arms a timer that may be stopped or already fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
