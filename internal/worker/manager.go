package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dkessler/parley/internal/process"
)

// Timeouts carries the send-completion policy applied to every turn.
type Timeouts struct {
	// Idle is the idle-timeout window after displayable output.
	Idle time.Duration
	// Max is the absolute ceiling per turn.
	Max time.Duration
	// StopGrace is the graceful-termination window on stop.
	StopGrace time.Duration
}

// TurnResult is the outcome of one executed turn.
type TurnResult struct {
	// Text is the worker's response text, extracted from structured output
	// when present.
	Text string
	// RawOutput is the accumulated output as received.
	RawOutput string
	// FinishReason is the completion signal that ended the turn.
	FinishReason process.FinishReason
}

// Manager implements the worker-management facade: it owns the process
// registry and resolves member ids to worker definitions.
type Manager struct {
	registry *process.Registry
	timeouts Timeouts

	mu sync.Mutex
	// defs are the available worker definitions by name.
	defs map[string]Definition
	// assigned remembers which definition each member was started with.
	assigned map[string]string
}

// NewManager creates a manager over the given definitions. Built-in
// definitions apply when defs does not override them.
func NewManager(defs map[string]Definition, timeouts Timeouts) *Manager {
	all := DefaultDefinitions()
	for name, d := range defs {
		if d.Name == "" {
			d.Name = name
		}
		all[name] = d
	}
	return &Manager{
		registry: process.NewRegistry(),
		timeouts: timeouts,
		defs:     all,
		assigned: make(map[string]string),
	}
}

// Definition returns the named worker definition.
func (m *Manager) Definition(name string) (Definition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.defs[name]
	return d, ok
}

// EnsureAgentStarted makes sure a live worker process exists for the member,
// launching one from the named definition if needed.
func (m *Manager) EnsureAgentStarted(ctx context.Context, memberID, workerConfigID string) error {
	m.mu.Lock()
	def, ok := m.defs[workerConfigID]
	if ok {
		m.assigned[memberID] = workerConfigID
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown worker definition %q for member %s", workerConfigID, memberID)
	}

	cfg, err := def.ProcessConfig(m.timeouts.StopGrace)
	if err != nil {
		return err
	}
	_, err = m.registry.Ensure(ctx, memberID, cfg)
	return err
}

// SendAndReceive executes one turn against the member's worker. The
// distinguished cancellation error from the process layer passes through
// unwrapped so callers can recognize it with errors.Is.
func (m *Manager) SendAndReceive(ctx context.Context, memberID, prompt string) (TurnResult, error) {
	ch := m.registry.Get(memberID)
	if ch == nil {
		return TurnResult{}, fmt.Errorf("no worker running for member %s: %w", memberID, process.ErrNotStarted)
	}

	m.mu.Lock()
	def := m.defs[m.assigned[memberID]]
	m.mu.Unlock()

	res, err := ch.SendAndReceive(ctx, prompt, process.Options{
		IdleTimeout:     m.timeouts.Idle,
		MaxTimeout:      m.timeouts.Max,
		EndMarker:       def.EndMarker,
		CompletionTypes: def.CompletionTypes,
	})
	if err != nil {
		return TurnResult{}, err
	}

	log.Printf("[worker] turn finished for %s (%s, %d bytes)", memberID, res.FinishReason, len(res.Text))
	return TurnResult{
		Text:         extractText(res.Text),
		RawOutput:    res.Text,
		FinishReason: res.FinishReason,
	}, nil
}

// CancelAgent aborts the member's in-flight turn, if any.
func (m *Manager) CancelAgent(memberID string) bool {
	return m.registry.Cancel(memberID)
}

// StopAgent terminates the member's worker process.
func (m *Manager) StopAgent(memberID string) error {
	return m.registry.Stop(memberID)
}

// StopAll terminates every running worker.
func (m *Manager) StopAll() {
	m.registry.StopAll()
}
