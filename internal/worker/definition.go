// Package worker provides the worker-management facade the conversation
// coordinator drives turns through. It maps named worker definitions onto
// process channels and normalizes their output into turn results.
package worker

import (
	"fmt"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/dkessler/parley/internal/process"
)

// Definition is a named worker type: how to launch the external tool and
// how to recognize that its response is finished.
type Definition struct {
	// Name identifies the definition in team files and config.
	Name string `mapstructure:"name"`
	// Command is the full command line, parsed with shell quoting rules.
	Command string `mapstructure:"command"`
	// Env is extra environment, KEY=VALUE form.
	Env []string `mapstructure:"env"`
	// Dir is the working directory for the worker.
	Dir string `mapstructure:"dir"`
	// CompletionTypes lists structured record types that end a turn.
	CompletionTypes []string `mapstructure:"completion_types"`
	// EndMarker is an optional legacy completion marker.
	EndMarker string `mapstructure:"end_marker"`
}

// DefaultDefinitions returns the built-in worker types available without any
// configuration.
func DefaultDefinitions() map[string]Definition {
	return map[string]Definition{
		"claude": {
			Name:            "claude",
			Command:         "claude --print --verbose --output-format stream-json",
			CompletionTypes: []string{"result"},
		},
	}
}

// ProcessConfig converts a definition into a launchable process config.
func (d Definition) ProcessConfig(stopGrace time.Duration) (process.Config, error) {
	argv, err := shellquote.Split(d.Command)
	if err != nil {
		return process.Config{}, fmt.Errorf("parse worker command %q: %w", d.Command, err)
	}
	if len(argv) == 0 {
		return process.Config{}, fmt.Errorf("worker %q has an empty command", d.Name)
	}
	return process.Config{
		Command:   argv[0],
		Args:      argv[1:],
		Env:       d.Env,
		Dir:       d.Dir,
		StopGrace: stopGrace,
	}, nil
}
