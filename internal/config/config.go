package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address string `json:"address"`
}

// KernelConfig describes the interpreter worker process
type KernelConfig struct {
	Command               string   `json:"command"`
	Args                  []string `json:"args"`
	StartupTimeoutSeconds int      `json:"startup_timeout_seconds"`
}

// ExecutionConfig holds execution engine settings
type ExecutionConfig struct {
	DefaultTimeoutSeconds int    `json:"default_timeout_seconds"`
	ScriptsDir            string `json:"scripts_dir"`
}

// AuditConfig holds step log settings
type AuditConfig struct {
	LogDir string `json:"log_dir"`
}

// HistoryConfig holds execution history settings
type HistoryConfig struct {
	RetentionDays int `json:"retention_days"`
}

// MaintenanceConfig holds background maintenance settings
type MaintenanceConfig struct {
	Cron string `json:"cron"`
}

// TerminalConfig holds tmux terminal settings
type TerminalConfig struct {
	StartDirectory string `json:"start_directory"`
}

// Config holds all configuration loaded from crucible.jsonc
type Config struct {
	Server      ServerConfig      `json:"server"`
	Kernel      KernelConfig      `json:"kernel"`
	Execution   ExecutionConfig   `json:"execution"`
	Audit       AuditConfig       `json:"audit"`
	History     HistoryConfig     `json:"history"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Terminal    TerminalConfig    `json:"terminal"`
}

// Default returns configuration with all defaults applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: ":8000",
		},
		Kernel: KernelConfig{
			Command:               "python3",
			Args:                  []string{"-u", "-m", "crucible_kernel"},
			StartupTimeoutSeconds: 3,
		},
		Execution: ExecutionConfig{
			DefaultTimeoutSeconds: 10,
			ScriptsDir:            "scripts",
		},
		Audit: AuditConfig{
			LogDir: "logs",
		},
		History: HistoryConfig{
			RetentionDays: 7,
		},
		Maintenance: MaintenanceConfig{
			Cron: "*/5 * * * *",
		},
		Terminal: TerminalConfig{},
	}
}

// Load reads crucible.jsonc from configDir and applies defaults for
// missing fields
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, "crucible.jsonc")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(StripJSONComments(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file
func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Kernel.Command == "" {
		c.Kernel.Command = def.Kernel.Command
		if c.Kernel.Args == nil {
			c.Kernel.Args = def.Kernel.Args
		}
	}
	if c.Kernel.StartupTimeoutSeconds <= 0 {
		c.Kernel.StartupTimeoutSeconds = def.Kernel.StartupTimeoutSeconds
	}
	if c.Execution.DefaultTimeoutSeconds <= 0 {
		c.Execution.DefaultTimeoutSeconds = def.Execution.DefaultTimeoutSeconds
	}
	if c.Execution.ScriptsDir == "" {
		c.Execution.ScriptsDir = def.Execution.ScriptsDir
	}
	if c.Audit.LogDir == "" {
		c.Audit.LogDir = def.Audit.LogDir
	}
	if c.History.RetentionDays <= 0 {
		c.History.RetentionDays = def.History.RetentionDays
	}
	if c.Maintenance.Cron == "" {
		c.Maintenance.Cron = def.Maintenance.Cron
	}
}

// ResolveHome determines the crucible home directory with precedence:
// 1. Explicit flag (if provided)
// 2. CRUCIBLE_HOME env var
// 3. ./.crucible (current directory, if initialized)
// 4. ~/.crucible (default)
func ResolveHome(flagDir string) (string, error) {
	if flagDir != "" {
		absDir, err := filepath.Abs(flagDir)
		if err != nil {
			return "", fmt.Errorf("invalid directory: %w", err)
		}
		return absDir, nil
	}

	if envDir := os.Getenv("CRUCIBLE_HOME"); envDir != "" {
		absDir, err := filepath.Abs(envDir)
		if err != nil {
			return "", fmt.Errorf("invalid CRUCIBLE_HOME: %w", err)
		}
		return absDir, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		directConfig := filepath.Join(cwd, "config", "crucible.jsonc")
		if _, err := os.Stat(directConfig); err == nil {
			return cwd, nil
		}
		localDir := filepath.Join(cwd, ".crucible")
		if _, err := os.Stat(filepath.Join(localDir, "config", "crucible.jsonc")); err == nil {
			return localDir, nil
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".crucible"), nil
}
