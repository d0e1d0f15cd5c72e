package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"tabscope/log"
)

const (
	ConfigFileName = "config.json"
	defaultProgram = "claude"
)

// GetConfigDir returns the path to the application's configuration directory
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".tabscope"), nil
}

// Config represents the application configuration
type Config struct {
	// DefaultProgram is the program launched in new tabs.
	DefaultProgram string `json:"default_program"`
	// AutoSnapshot controls whether a risky detection triggers a protective
	// snapshot automatically instead of waiting for the user.
	AutoSnapshot bool `json:"auto_snapshot"`
	// BlockCapacity is the per-tab retention cap for classified blocks.
	BlockCapacity int `json:"block_capacity"`
	// IdleResetDelayMs is how long (ms) a success/error outcome stays on the
	// tab before it returns to idle.
	IdleResetDelayMs int `json:"idle_reset_delay_ms"`
	// SnapshotCooldownMs is the minimum interval (ms) between automatic
	// snapshots of the same project.
	SnapshotCooldownMs int `json:"snapshot_cooldown_ms"`
	// RiskyPatternsPath optionally points to a JSON file replacing the
	// built-in risky-operation rules.
	RiskyPatternsPath string `json:"risky_patterns_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	program, err := GetAgentCommand()
	if err != nil {
		log.ErrorLog.Printf("failed to resolve agent command: %v", err)
		program = defaultProgram
	}

	return &Config{
		DefaultProgram:     program,
		AutoSnapshot:       true,
		BlockCapacity:      100,
		IdleResetDelayMs:   3000,
		SnapshotCooldownMs: 5000,
	}
}

// IdleResetDelay returns the configured delay as a duration.
func (c *Config) IdleResetDelay() time.Duration {
	return time.Duration(c.IdleResetDelayMs) * time.Millisecond
}

// SnapshotCooldown returns the configured cool-down as a duration.
func (c *Config) SnapshotCooldown() time.Duration {
	return time.Duration(c.SnapshotCooldownMs) * time.Millisecond
}

// GetAgentCommand attempts to find the "claude" command in the user's shell
// It checks in the following order:
// 1. Shell alias resolution: using "which" command
// 2. PATH lookup
//
// If both fail, it returns an error.
func GetAgentCommand() (string, error) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash" // Default to bash if SHELL is not set
	}

	// Force the shell to load the user's profile and then run the command
	// For zsh, source .zshrc; for bash, source .bashrc
	var shellCmd string
	if strings.Contains(shell, "zsh") {
		shellCmd = "source ~/.zshrc &>/dev/null || true; which claude"
	} else if strings.Contains(shell, "bash") {
		shellCmd = "source ~/.bashrc &>/dev/null || true; which claude"
	} else {
		shellCmd = "which claude"
	}

	cmd := exec.Command(shell, "-c", shellCmd)
	output, err := cmd.Output()
	if err == nil && len(output) > 0 {
		path := strings.TrimSpace(string(output))
		if path != "" {
			// Check if the output is an alias definition and extract the actual path
			// Handle formats like "claude: aliased to /path/to/claude" or other shell-specific formats
			aliasRegex := regexp.MustCompile(`(?:aliased to|->|=)\s*([^\s]+)`)
			matches := aliasRegex.FindStringSubmatch(path)
			if len(matches) > 1 {
				path = matches[1]
			}
			return path, nil
		}
	}

	// Otherwise, try to find in PATH directly
	agentPath, err := exec.LookPath("claude")
	if err == nil {
		return agentPath, nil
	}

	return "", fmt.Errorf("claude command not found in aliases or PATH")
}

func LoadConfig() *Config {
	configDir, err := GetConfigDir()
	if err != nil {
		log.ErrorLog.Printf("failed to get config directory: %v", err)
		return DefaultConfig()
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create and save default config if file doesn't exist
			defaultCfg := DefaultConfig()
			if saveErr := saveConfig(defaultCfg); saveErr != nil {
				log.WarningLog.Printf("failed to save default config: %v", saveErr)
			}
			return defaultCfg
		}

		log.WarningLog.Printf("failed to get config file: %v", err)
		return DefaultConfig()
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		// Log the error with more context about what failed
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		log.ErrorLog.Printf("failed to parse config file at %s: %v\nConfig content preview: %s", configPath, err, preview)

		// Backup the corrupted config before falling back to defaults
		backupPath := configPath + ".corrupt." + time.Now().Format("20060102-150405")
		if backupErr := os.WriteFile(backupPath, data, 0644); backupErr == nil {
			log.InfoLog.Printf("Backed up corrupted config to: %s", backupPath)
		}

		return DefaultConfig()
	}

	config.applyDefaults()
	return &config
}

// applyDefaults fills zero values left by a hand-edited or older config file.
func (c *Config) applyDefaults() {
	if c.DefaultProgram == "" {
		c.DefaultProgram = defaultProgram
	}
	if c.BlockCapacity <= 0 {
		c.BlockCapacity = 100
	}
	if c.IdleResetDelayMs <= 0 {
		c.IdleResetDelayMs = 3000
	}
	if c.SnapshotCooldownMs <= 0 {
		c.SnapshotCooldownMs = 5000
	}
}

// saveConfig saves the configuration to disk
func saveConfig(config *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveConfig exports the saveConfig function for use by other packages
func SaveConfig(config *Config) error {
	return saveConfig(config)
}
