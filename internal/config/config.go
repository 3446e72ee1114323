package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/templatedoctor/validation-orchestrator/internal/schedule"
)

// Config holds all application configuration.
type Config struct {
	GitHub GitHubConfig          `toml:"github"`
	Server ServerConfig          `toml:"server"`
	Poll   PollConfig            `toml:"poll"`
	Batch  BatchConfig           `toml:"batch"`
	Rules  RulesConfig           `toml:"rules"`
	Scans  []schedule.ScanConfig `toml:"scan"`
}

// GitHubConfig holds host adapter settings.
type GitHubConfig struct {
	// Token is the service-to-service credential. Falls back to the
	// GITHUB_TOKEN environment variable when empty.
	Token string `toml:"token"`
	// APIBase overrides the GitHub API endpoint.
	APIBase string `toml:"api_base"`
	// WorkflowRepo is the "owner/repo" hosting the validation workflow.
	WorkflowRepo string `toml:"workflow_repo"`
	// WorkflowFile is the workflow filename to dispatch.
	WorkflowFile string `toml:"workflow_file"`
	// Branch is the ref runs are dispatched on and listed against.
	Branch string `toml:"branch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PollConfig holds client poll driver defaults.
type PollConfig struct {
	IntervalMs  int `toml:"interval_ms"`
	MaxAttempts int `toml:"max_attempts"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// BatchConfig holds batch coordinator settings.
type BatchConfig struct {
	// Concurrency bounds how many items one batch advances at once.
	Concurrency int `toml:"concurrency"`
	// ScanDelayMs is the simulated analyzer's per-repo scan cost.
	ScanDelayMs int `toml:"scan_delay_ms"`
	// SweepAfterHours is how long finished batches stay queryable.
	SweepAfterHours int `toml:"sweep_after_hours"`
}

// ScanDelay returns the simulated scan cost as a duration.
func (b BatchConfig) ScanDelay() time.Duration {
	return time.Duration(b.ScanDelayMs) * time.Millisecond
}

// SweepAfter returns the batch retention window as a duration.
func (b BatchConfig) SweepAfter() time.Duration {
	return time.Duration(b.SweepAfterHours) * time.Hour
}

// RulesConfig holds rule set settings.
type RulesConfig struct {
	Dir string `toml:"dir"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			WorkflowFile: "validate-template.yml",
			Branch:       "main",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Poll: PollConfig{
			IntervalMs:  5000,
			MaxAttempts: 60,
		},
		Batch: BatchConfig{
			Concurrency:     1,
			ScanDelayMs:     2000,
			SweepAfterHours: 24,
		},
		Rules: RulesConfig{
			Dir: "rulesets",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
// for a missing file. The GitHub token falls back to the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Rules.Dir = ExpandPath(cfg.Rules.Dir)
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "td-orch", "config.toml")
}
