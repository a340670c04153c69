package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/dkessler/parley/internal/config"
	"github.com/dkessler/parley/internal/worker"
	"github.com/dkessler/parley/pkg/models"
)

// CheckWorkerCLIs verifies that every AI member's worker command is
// available in PATH. Returns an error naming the missing commands.
func CheckWorkerCLIs(team *models.Team, defs map[string]worker.Definition) error {
	all := worker.DefaultDefinitions()
	for name, d := range defs {
		all[name] = d
	}

	var missing []string
	checked := make(map[string]bool)
	for _, m := range team.Members {
		if m.Kind != models.MemberKindAI || checked[m.WorkerConfig] {
			continue
		}
		checked[m.WorkerConfig] = true

		def, ok := all[m.WorkerConfig]
		if !ok {
			missing = append(missing, fmt.Sprintf("%s (no such worker definition)", m.WorkerConfig))
			continue
		}
		argv, err := shellquote.Split(def.Command)
		if err != nil || len(argv) == 0 {
			missing = append(missing, fmt.Sprintf("%s (unparseable command %q)", m.WorkerConfig, def.Command))
			continue
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s not in PATH)", m.WorkerConfig, argv[0]))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("worker CLI check failed:\n  %s", strings.Join(missing, "\n  "))
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Multi-party AI conversation orchestrator",
	Long: `Parley orchestrates conversations among teams of AI workers and humans.

Members hand the floor to each other with routing directives embedded in
their messages ([NEXT: name], optionally [NEXT: name:p1] to interrupt).
A priority queue decides who speaks next, bounds runaway branches, and
keeps every thread moving; when no directive resolves, the conversation
pauses and waits for you.

Define teams as YAML files in ~/.config/parley/teams, then:

  parley run --team core-review              # interactive TUI
  parley run --team core-review "Review the auth changes [NEXT: ava]"
  parley sessions --team core-review         # saved conversations
  parley run --team core-review --resume <session-id>`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfigOrExit loads the layered configuration, exiting on failure.
func loadConfigOrExit() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(teamsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
