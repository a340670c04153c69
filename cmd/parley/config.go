package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkessler/parley/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Parley configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/parley/config.yaml
Project-specific overrides can be placed in .parley.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("queue.max_queue_size: %d\n", cfg.Queue.MaxQueueSize)
	fmt.Printf("queue.max_branch_size: %d\n", cfg.Queue.MaxBranchSize)
	fmt.Printf("queue.max_local_seq: %d\n", cfg.Queue.MaxLocalSeq)
	fmt.Printf("queue.max_rounds: %d\n", cfg.Queue.MaxRounds)
	fmt.Printf("timeouts.idle: %s\n", cfg.Timeouts.Idle)
	fmt.Printf("timeouts.max: %s\n", cfg.Timeouts.Max)
	fmt.Printf("timeouts.stop_grace: %s\n", cfg.Timeouts.StopGrace)
	fmt.Printf("storage.db_path: %s\n", cfg.Storage.DBPath)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
	fmt.Printf("prompt.byte_budget: %d\n", cfg.Prompt.ByteBudget)
	fmt.Printf("prompt.system_instructions: %s\n", cfg.Prompt.SystemInstructions)
	for name, def := range cfg.Workers {
		fmt.Printf("workers.%s.command: %s\n", name, def.Command)
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "queue.max_queue_size":
		return strconv.Itoa(cfg.Queue.MaxQueueSize), nil
	case "queue.max_branch_size":
		return strconv.Itoa(cfg.Queue.MaxBranchSize), nil
	case "queue.max_local_seq":
		return strconv.Itoa(cfg.Queue.MaxLocalSeq), nil
	case "queue.max_rounds":
		return strconv.Itoa(cfg.Queue.MaxRounds), nil
	case "timeouts.idle":
		return cfg.Timeouts.Idle.String(), nil
	case "timeouts.max":
		return cfg.Timeouts.Max.String(), nil
	case "timeouts.stop_grace":
		return cfg.Timeouts.StopGrace.String(), nil
	case "storage.db_path":
		return cfg.Storage.DBPath, nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	case "prompt.byte_budget":
		return strconv.Itoa(cfg.Prompt.ByteBudget), nil
	case "prompt.system_instructions":
		return cfg.Prompt.SystemInstructions, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "queue.max_queue_size":
		return setIntValue(&cfg.Queue.MaxQueueSize, value)
	case "queue.max_branch_size":
		return setIntValue(&cfg.Queue.MaxBranchSize, value)
	case "queue.max_local_seq":
		return setIntValue(&cfg.Queue.MaxLocalSeq, value)
	case "queue.max_rounds":
		return setIntValue(&cfg.Queue.MaxRounds, value)
	case "timeouts.idle":
		return setDurationValue(&cfg.Timeouts.Idle, value)
	case "timeouts.max":
		return setDurationValue(&cfg.Timeouts.Max, value)
	case "timeouts.stop_grace":
		return setDurationValue(&cfg.Timeouts.StopGrace, value)
	case "storage.db_path":
		cfg.Storage.DBPath = value
		return nil
	case "tui.refresh_rate":
		return setDurationValue(&cfg.TUI.RefreshRate, value)
	case "prompt.byte_budget":
		return setIntValue(&cfg.Prompt.ByteBudget, value)
	case "prompt.system_instructions":
		cfg.Prompt.SystemInstructions = value
		return nil
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}

func setIntValue(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q", value)
	}
	*dst = n
	return nil
}

func setDurationValue(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value)
	}
	*dst = d
	return nil
}
