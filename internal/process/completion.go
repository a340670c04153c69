package process

import (
	"encoding/json"
	"strings"
	"time"
)

// FinishReason tells the caller which completion signal resolved a send.
type FinishReason string

const (
	// FinishResultRecord means a structured record of a completion type
	// arrived.
	FinishResultRecord FinishReason = "result_record"
	// FinishIdleTimeout means displayable output was observed but no
	// completion record arrived within the idle window.
	FinishIdleTimeout FinishReason = "idle_timeout"
	// FinishEndMarker means the configured legacy end marker appeared.
	FinishEndMarker FinishReason = "end_marker"
	// FinishProcessExit means the worker exited after producing output.
	FinishProcessExit FinishReason = "process_exit"
)

// Default timeouts for a send.
const (
	DefaultIdleTimeout = 30 * time.Second
	DefaultMaxTimeout  = 10 * time.Minute
)

// Options tunes completion detection for one send.
type Options struct {
	// IdleTimeout returns accumulated output when no structured completion
	// arrives within this window of the last chunk. Armed only after the
	// first displayable output, so a silent startup never triggers it.
	IdleTimeout time.Duration
	// MaxTimeout is the absolute ceiling; reaching it force-stops the
	// worker and fails the send.
	MaxTimeout time.Duration
	// EndMarker is a legacy completion marker; it only resolves a send when
	// no structured record has been observed, and is stripped from the
	// result.
	EndMarker string
	// CompletionTypes lists record types that complete a turn. Defaults to
	// {"result"}.
	CompletionTypes []string
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = DefaultMaxTimeout
	}
	if len(o.CompletionTypes) == 0 {
		o.CompletionTypes = []string{"result"}
	}
	return o
}

// Result is the outcome of a successful send.
type Result struct {
	// Text is the accumulated output.
	Text string
	// FinishReason is the signal that completed the turn.
	FinishReason FinishReason
}

// detector accumulates a turn's output and decides, line by line, whether a
// completion signal has been observed. It is independent of any timers so
// the detection rules are testable on their own.
type detector struct {
	completionTypes map[string]bool
	endMarker       string

	lines []string
	// sawRecord is true once any syntactically valid typed record arrived;
	// structured detection is authoritative, so the end marker is only
	// honored before that point.
	sawRecord   bool
	displayable bool
}

func newDetector(opts Options) *detector {
	d := &detector{
		completionTypes: make(map[string]bool, len(opts.CompletionTypes)),
		endMarker:       opts.EndMarker,
	}
	for _, t := range opts.CompletionTypes {
		d.completionTypes[t] = true
	}
	return d
}

// feed consumes one output line. It returns a non-empty reason once the
// accumulated output constitutes a complete response.
func (d *detector) feed(line string) (FinishReason, bool) {
	d.lines = append(d.lines, line)
	if strings.TrimSpace(line) != "" {
		d.displayable = true
	}

	if typ, ok := recordType(line); ok {
		d.sawRecord = true
		if d.completionTypes[typ] {
			return FinishResultRecord, true
		}
		return "", false
	}

	if d.endMarker != "" && !d.sawRecord && strings.Contains(line, d.endMarker) {
		return FinishEndMarker, true
	}
	return "", false
}

// sawDisplayable reports whether any non-trivial output has arrived yet.
func (d *detector) sawDisplayable() bool {
	return d.displayable
}

// text returns the accumulated output, with the end marker stripped if one
// is configured.
func (d *detector) text() string {
	out := strings.Join(d.lines, "\n")
	if d.endMarker != "" {
		out = strings.ReplaceAll(out, d.endMarker, "")
		out = strings.TrimRight(out, " \t\n")
	}
	return out
}

// recordType extracts the type field from a syntactically valid structured
// record line.
func recordType(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var record struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return "", false
	}
	if record.Type == "" {
		return "", false
	}
	return record.Type, true
}
