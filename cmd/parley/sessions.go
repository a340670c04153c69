package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dkessler/parley/internal/state"
)

var sessionsTeam string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved conversation sessions",
	Long: `List saved session snapshots, newest first.

Resume one with:
  parley run --team <team> --resume <session-id>`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsTeam, "team", "", "Only list sessions for this team")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrExit()

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No saved sessions yet.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate session store: %w", err)
	}

	infos, err := db.List(sessionsTeam)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("No saved sessions yet.")
		return nil
	}

	idColor := color.New(color.FgWhite, color.Bold)
	dimColor := color.New(color.FgHiBlack)

	for _, info := range infos {
		idColor.Printf("%s", info.SessionID)
		dimColor.Printf("  team=%s", info.TeamID)
		fmt.Printf("  %d messages  updated %s\n",
			info.MessageCount, info.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
