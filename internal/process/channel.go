// Package process owns the lifecycle of external worker processes: start,
// send a turn's input, detect when the response is complete, stop. It has no
// knowledge of conversation semantics.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Config describes how to launch a worker process.
type Config struct {
	// Command is the executable to run.
	Command string
	// Args are the command arguments.
	Args []string
	// Env is appended to the parent environment.
	Env []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// StopGrace is how long Stop waits for a graceful exit before killing.
	// Zero means DefaultStopGrace.
	StopGrace time.Duration
}

// DefaultStopGrace is the grace window between a termination request and a
// forced kill.
const DefaultStopGrace = 5 * time.Second

// Channel manages one worker process. It supports exactly one outstanding
// SendAndReceive at a time; output arriving before a receiver attaches is
// buffered and delivered once.
type Channel struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	started   bool
	exited    bool
	waitErr   error
	pending   []string
	stderrBuf []byte
	inFlight  bool
	// cancelTurn aborts the current receive; replaced per turn.
	cancelTurn chan struct{}

	// notify wakes the receive loop when output or an exit arrives.
	notify chan struct{}
	// exit is closed once the process has fully exited.
	exit chan struct{}
}

// NewChannel creates an unstarted channel for the given worker config.
func NewChannel(cfg Config) *Channel {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	return &Channel{
		cfg:    cfg,
		notify: make(chan struct{}, 1),
		exit:   make(chan struct{}),
	}
}

// Start launches the worker process and begins buffering its output.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("worker already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.cmd = exec.CommandContext(c.ctx, c.cfg.Command, c.cfg.Args...)
	if c.cfg.Dir != "" {
		c.cmd.Dir = c.cfg.Dir
	}
	if len(c.cfg.Env) > 0 {
		c.cmd.Env = append(os.Environ(), c.cfg.Env...)
	}

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	c.stdin = stdin
	c.started = true

	var readers sync.WaitGroup
	readers.Add(2)
	go c.readOutput(stdout, &readers)
	go c.readStderr(stderr, &readers)
	go c.waitExit(&readers)

	return nil
}

// readOutput buffers stdout lines until a receiver drains them.
func (c *Channel) readOutput(stdout io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(stdout)
	// Large buffer for oversized structured records.
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		c.mu.Lock()
		c.pending = append(c.pending, line)
		c.mu.Unlock()
		c.wake()
	}
}

// readStderr captures stderr for error reporting.
func (c *Channel) readStderr(stderr io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(stderr)
	buf := make([]byte, 16*1024)
	scanner.Buffer(buf, 256*1024)

	for scanner.Scan() {
		c.mu.Lock()
		c.stderrBuf = append(c.stderrBuf, scanner.Bytes()...)
		c.stderrBuf = append(c.stderrBuf, '\n')
		c.mu.Unlock()
	}
}

// waitExit reaps the process after both pipe readers finish.
func (c *Channel) waitExit(readers *sync.WaitGroup) {
	readers.Wait()
	err := c.cmd.Wait()

	c.mu.Lock()
	c.exited = true
	c.waitErr = err
	c.mu.Unlock()

	close(c.exit)
	c.wake()
}

// wake signals the receive loop without blocking.
func (c *Channel) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// takePending drains buffered output lines and reports whether the process
// has exited.
func (c *Channel) takePending() (lines []string, exited bool, waitErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines = c.pending
	c.pending = nil
	return lines, c.exited, c.waitErr
}

// Alive reports whether the process has started and not yet exited.
func (c *Channel) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.exited
}

// Stderr returns captured stderr output.
func (c *Channel) Stderr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.stderrBuf)
}

// PID returns the worker's process id, or 0 if not started.
func (c *Channel) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

// Stop requests graceful termination and escalates to a forced kill when the
// process has not exited within the grace window.
func (c *Channel) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	if c.exited {
		c.mu.Unlock()
		return nil
	}
	proc := c.cmd.Process
	grace := c.cfg.StopGrace
	c.mu.Unlock()

	if proc != nil {
		// Ignore signalling errors: the process may already be gone.
		_ = proc.Signal(syscall.SIGTERM)
	}

	select {
	case <-c.exit:
		return nil
	case <-time.After(grace):
	}

	c.forceStop()

	select {
	case <-c.exit:
	case <-time.After(grace):
		return fmt.Errorf("worker did not exit after kill")
	}
	return nil
}

// forceStop kills the process immediately via context cancellation.
func (c *Channel) forceStop() {
	c.mu.Lock()
	cancel := c.cancel
	proc := c.cmd.Process
	exited := c.exited
	c.mu.Unlock()

	if exited {
		return
	}
	if cancel != nil {
		cancel()
	}
	if proc != nil {
		_ = proc.Kill()
	}
}
