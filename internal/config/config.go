// Package config handles configuration loading and management for Parley.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/dkessler/parley/internal/routing"
	"github.com/dkessler/parley/internal/worker"
)

// Config holds all configuration for Parley.
type Config struct {
	Queue    QueueConfig                  `mapstructure:"queue"`
	Timeouts TimeoutsConfig               `mapstructure:"timeouts"`
	Storage  StorageConfig                `mapstructure:"storage"`
	TUI      TUIConfig                    `mapstructure:"tui"`
	Prompt   PromptConfig                 `mapstructure:"prompt"`
	Workers  map[string]worker.Definition `mapstructure:"workers"`
}

// QueueConfig holds routing queue limits.
type QueueConfig struct {
	// MaxQueueSize is the hard cap on pending routing items.
	MaxQueueSize int `mapstructure:"max_queue_size"`
	// MaxBranchSize caps one branch's pending items before demotion.
	MaxBranchSize int `mapstructure:"max_branch_size"`
	// MaxLocalSeq bounds consecutive local-first selections.
	MaxLocalSeq int `mapstructure:"max_local_seq"`
	// MaxRounds caps automatic turns per drive; 0 means unlimited.
	MaxRounds int `mapstructure:"max_rounds"`
}

// TimeoutsConfig holds per-turn timeout settings.
type TimeoutsConfig struct {
	// Idle is the idle-timeout window after displayable output.
	Idle time.Duration `mapstructure:"idle"`
	// Max is the absolute per-turn ceiling.
	Max time.Duration `mapstructure:"max"`
	// StopGrace is the graceful-termination window on worker stop.
	StopGrace time.Duration `mapstructure:"stop_grace"`
}

// StorageConfig holds session persistence settings.
type StorageConfig struct {
	// DBPath is the SQLite database path. Empty selects the XDG default.
	DBPath string `mapstructure:"db_path"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// PromptConfig holds prompt assembly settings.
type PromptConfig struct {
	// ByteBudget bounds assembled prompt size.
	ByteBudget int `mapstructure:"byte_budget"`
	// SystemInstructions is standing guidance passed to every worker.
	SystemInstructions string `mapstructure:"system_instructions"`
}

// RoutingOptions returns the queue limits in routing's option form.
func (c *Config) RoutingOptions() routing.Options {
	return routing.Options{
		MaxQueueSize:  c.Queue.MaxQueueSize,
		MaxBranchSize: c.Queue.MaxBranchSize,
		MaxLocalSeq:   c.Queue.MaxLocalSeq,
	}
}

// WorkerTimeouts returns the turn timeouts in the worker layer's form.
func (c *Config) WorkerTimeouts() worker.Timeouts {
	return worker.Timeouts{
		Idle:      c.Timeouts.Idle,
		Max:       c.Timeouts.Max,
		StopGrace: c.Timeouts.StopGrace,
	}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (PARLEY_*)
// 2. Project config (.parley.yaml in current directory or parent)
// 3. User config (~/.config/parley/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("PARLEY")
	v.AutomaticEnv()
	v.BindEnv("storage.db_path", "PARLEY_DB_PATH")
	v.BindEnv("queue.max_rounds", "PARLEY_MAX_ROUNDS")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("queue.max_queue_size", cfg.Queue.MaxQueueSize)
	v.Set("queue.max_branch_size", cfg.Queue.MaxBranchSize)
	v.Set("queue.max_local_seq", cfg.Queue.MaxLocalSeq)
	v.Set("queue.max_rounds", cfg.Queue.MaxRounds)
	v.Set("timeouts.idle", cfg.Timeouts.Idle.String())
	v.Set("timeouts.max", cfg.Timeouts.Max.String())
	v.Set("timeouts.stop_grace", cfg.Timeouts.StopGrace.String())
	v.Set("storage.db_path", cfg.Storage.DBPath)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())
	v.Set("prompt.byte_budget", cfg.Prompt.ByteBudget)
	v.Set("prompt.system_instructions", cfg.Prompt.SystemInstructions)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// TeamsDir returns the directory holding team definition files.
func TeamsDir() string {
	return filepath.Join(getUserConfigDir(), "teams")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			MaxQueueSize:  24,
			MaxBranchSize: 4,
			MaxLocalSeq:   3,
		},
		Timeouts: TimeoutsConfig{
			Idle:      30 * time.Second,
			Max:       10 * time.Minute,
			StopGrace: 5 * time.Second,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
		Prompt: PromptConfig{
			ByteBudget: 64 * 1024,
		},
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.max_queue_size", 24)
	v.SetDefault("queue.max_branch_size", 4)
	v.SetDefault("queue.max_local_seq", 3)
	v.SetDefault("queue.max_rounds", 0)

	v.SetDefault("timeouts.idle", "30s")
	v.SetDefault("timeouts.max", "10m")
	v.SetDefault("timeouts.stop_grace", "5s")

	v.SetDefault("storage.db_path", "")

	v.SetDefault("tui.refresh_rate", "100ms")

	v.SetDefault("prompt.byte_budget", 64*1024)
	v.SetDefault("prompt.system_instructions", "")
}

// getUserConfigDir returns the XDG config directory for Parley.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "parley")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "parley")
	}
	return filepath.Join(home, ".config", "parley")
}

// findProjectConfig searches for .parley.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".parley.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
