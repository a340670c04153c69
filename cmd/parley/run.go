package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dkessler/parley/internal/config"
	"github.com/dkessler/parley/internal/conversation"
	"github.com/dkessler/parley/internal/state"
	"github.com/dkessler/parley/internal/team"
	"github.com/dkessler/parley/internal/tui"
	"github.com/dkessler/parley/internal/worker"
	"github.com/dkessler/parley/pkg/models"
)

var (
	runTeam    string
	runResume  string
	runSkipCLI bool
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Run a conversation with a team",
	Long: `Start or resume a conversation with the given team.

With a message argument, runs headless: the message is routed, worker turns
execute until the conversation pauses or completes, the transcript prints,
and the session is saved. Without a message, opens the interactive TUI.

Examples:
  parley run --team core-review
  parley run --team core-review "Review the login flow [NEXT: ava]"
  parley run --team core-review --resume 2f1c...`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTeam, "team", "", "Team to converse with (required)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Session id to resume")
	runCmd.Flags().BoolVar(&runSkipCLI, "skip-cli-check", false, "Skip worker CLI availability check")
	runCmd.MarkFlagRequired("team")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrExit()

	registry := team.NewRegistry(config.TeamsDir())
	if err := registry.LoadAll(); err != nil {
		return err
	}
	tm := registry.Get(runTeam)
	if tm == nil {
		return fmt.Errorf("unknown team %q; define it in %s or check 'parley teams'", runTeam, config.TeamsDir())
	}

	if !runSkipCLI {
		if err := CheckWorkerCLIs(tm, cfg.Workers); err != nil {
			return err
		}
	}

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate session store: %w", err)
	}

	manager := worker.NewManager(cfg.Workers, cfg.WorkerTimeouts())
	coord := conversation.NewCoordinator(tm, manager, conversation.Options{
		Queue:              cfg.RoutingOptions(),
		MaxRounds:          cfg.Queue.MaxRounds,
		PromptBudget:       cfg.Prompt.ByteBudget,
		SystemInstructions: cfg.Prompt.SystemInstructions,
		Store:              db,
	})
	defer coord.Stop()

	if runResume != "" {
		if err := coord.SetTeam(tm, runResume); err != nil {
			return err
		}
		fmt.Printf("Resumed session %s (%d messages)\n", runResume, len(coord.Messages()))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if message := strings.TrimSpace(strings.Join(args, " ")); message != "" {
		return runHeadless(ctx, coord, message)
	}
	return runWithTUI(coord)
}

// runHeadless routes one message, prints the resulting transcript, and
// saves the session.
func runHeadless(ctx context.Context, coord *conversation.Coordinator, message string) error {
	go consumeEventsHeadless(coord.Events())

	var sendErr error
	if coord.Status() == models.SessionPaused {
		sendErr = coord.InjectMessage(ctx, "", message)
	} else {
		sendErr = coord.SendMessage(ctx, message, "")
	}

	printTranscript(coord.Team(), coord.Messages())

	if err := coord.SaveCurrentSession(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: session not saved: %v\n", err)
	} else {
		fmt.Printf("\nSession %s saved. Resume with: parley run --team %s --resume %s\n",
			coord.SessionID(), runTeam, coord.SessionID())
	}

	if sendErr != nil {
		return fmt.Errorf("conversation failed: %w", sendErr)
	}
	return nil
}

// consumeEventsHeadless logs coordinator events for non-TUI runs.
func consumeEventsHeadless(events <-chan conversation.ConversationEvent) {
	for event := range events {
		switch event.Type {
		case conversation.EventMemberStarted:
			fmt.Printf("  %s is responding...\n", event.MemberName)
		case conversation.EventQueueProtection:
			fmt.Printf("  queue protection: %s (member %s)\n", event.Message, event.MemberID)
		case conversation.EventUnresolvedAddressee:
			fmt.Printf("  %s addressed unknown member(s): %v\n", event.MemberName, event.Unresolved)
		case conversation.EventConsistencyWarning:
			fmt.Printf("  warning: history references absent member(s): %v\n", event.MissingSpeakers)
		}
	}
}

// printTranscript writes the conversation to stdout with colored speakers.
func printTranscript(tm *models.Team, messages []models.ConversationMessage) {
	humanColor := color.New(color.FgGreen, color.Bold)
	aiColor := color.New(color.FgCyan, color.Bold)

	fmt.Println()
	for i := range messages {
		m := &messages[i]
		c := aiColor
		if m.Speaker.Kind == models.MemberKindHuman {
			c = humanColor
		}
		name := m.Speaker.DisplayName
		if name == "" {
			name = m.Speaker.Name
		}
		c.Printf("%s", name)
		fmt.Printf(" [%s]", m.Timestamp.Format("15:04:05"))
		if len(m.RawDirectives) > 0 {
			color.New(color.FgYellow).Printf(" %s", strings.Join(m.RawDirectives, " "))
		}
		fmt.Printf("\n%s\n\n", m.Content)
	}
}

// runWithTUI runs the conversation behind the interactive TUI.
func runWithTUI(coord *conversation.Coordinator) error {
	// Suppress log output while TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	program, _ := tui.NewProgram(coord)
	go tui.ForwardEvents(program, coord.Events())

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI failed: %w", err)
	}
	return nil
}
