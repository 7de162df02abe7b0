package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all gobby server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath             string `json:"db_path"`
	WorkflowDir        string `json:"workflow_dir"`
	LogLevel           string `json:"log_level"`
	StuckStepMinutes   int    `json:"stuck_step_minutes"`
	RecoveryStep       string `json:"recovery_step"`
	MaxTransitionChain int    `json:"max_transition_chain"`
	MaintenanceCron    string `json:"maintenance_cron"`
	RetentionDays      int    `json:"retention_days"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          "file:" + filepath.Join(gobbyDir(), "gobby.db"),
		WorkflowDir:     filepath.Join(gobbyDir(), "workflows"),
		LogLevel:        "info",
		MaintenanceCron: "0 3 * * *",
		RetentionDays:   30,
	}
}

func gobbyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gobby"
	}
	return filepath.Join(home, ".gobby")
}

func settingsPath() string {
	return filepath.Join(gobbyDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("GOBBY_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GOBBY_WORKFLOW_DIR"); v != "" {
		cfg.WorkflowDir = v
	}
	if v := os.Getenv("GOBBY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GOBBY_STUCK_STEP_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StuckStepMinutes = n
		}
	}
	if v := os.Getenv("GOBBY_RECOVERY_STEP"); v != "" {
		cfg.RecoveryStep = v
	}
	if v := os.Getenv("GOBBY_MAX_TRANSITION_CHAIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTransitionChain = n
		}
	}
	if v := os.Getenv("GOBBY_MAINTENANCE_CRON"); v != "" {
		cfg.MaintenanceCron = v
	}
	if v := os.Getenv("GOBBY_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionDays = n
		}
	}

	return cfg
}

// stuckThreshold converts the configured minutes to a duration.
// Zero disables stuck-step detection.
func (c Config) stuckThreshold() time.Duration {
	return time.Duration(c.StuckStepMinutes) * time.Minute
}

func (c Config) retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
