package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dkessler/parley/internal/config"
	"github.com/dkessler/parley/internal/team"
	"github.com/dkessler/parley/pkg/models"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List available teams",
	Long: `List the teams defined in ` + "~/.config/parley/teams" + `.

Each team is a YAML file naming its members, their kinds (ai or human),
and the worker definition driving each AI member.`,
	RunE: runTeams,
}

func runTeams(cmd *cobra.Command, args []string) error {
	registry := team.NewRegistry(config.TeamsDir())
	if err := registry.LoadAll(); err != nil {
		return err
	}

	teams := registry.List()
	if len(teams) == 0 {
		fmt.Printf("No teams found in %s.\n\nCreate one, for example:\n\n", config.TeamsDir())
		fmt.Println(exampleTeamYAML)
		return nil
	}

	nameColor := color.New(color.FgWhite, color.Bold)
	humanColor := color.New(color.FgGreen)
	aiColor := color.New(color.FgCyan)
	dimColor := color.New(color.FgHiBlack)

	for _, tm := range teams {
		nameColor.Printf("%s", tm.Name)
		dimColor.Printf("  (%s)\n", tm.ID)
		if tm.Description != "" {
			fmt.Printf("  %s\n", tm.Description)
		}
		for _, m := range tm.Members {
			if m.Kind == models.MemberKindHuman {
				humanColor.Printf("  %-16s", m.Name)
				fmt.Println("human")
			} else {
				aiColor.Printf("  %-16s", m.Name)
				fmt.Printf("ai (%s)\n", m.WorkerConfig)
			}
		}
		fmt.Println()
	}
	return nil
}

const exampleTeamYAML = `# ~/.config/parley/teams/core-review.yaml
name: Core Review
task: Review proposed changes for correctness and style
members:
  - name: dana
    kind: human
  - name: ava
    worker: claude
  - name: ben
    worker: claude`
