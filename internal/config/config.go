package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Transcription configures the transcription backend.
type Transcription struct {
	Backend        string `toml:"backend"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Language       string `toml:"language"`
}

// Shallow configures the fast first-pass extraction model and its context.
type Shallow struct {
	Backend        string  `toml:"backend"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	APIKey         string  `toml:"api_key"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	ContextWindow  int     `toml:"context_window"`
}

// Deep configures the expensive enrichment model.
type Deep struct {
	Backend        string  `toml:"backend"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	APIKey         string  `toml:"api_key"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float64 `toml:"temperature"`
	ContextWindow  int     `toml:"context_window"`
	// RecentFlagLimit bounds the rolling window of recent deep semantic
	// summaries included in prompts to discourage repeat analysis.
	RecentFlagLimit int `toml:"recent_flag_limit"`
	// MaxInFlight caps concurrent deep model calls. The default of 1 keeps
	// spend bounded to a single in-flight request.
	MaxInFlight int `toml:"max_in_flight"`
}

// Semantic configures the embedding backend and the dedup cache.
type Semantic struct {
	Backend             string  `toml:"backend"`
	BaseURL             string  `toml:"base_url"`
	Model               string  `toml:"model"`
	APIKey              string  `toml:"api_key"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	ContextMinutes      int     `toml:"context_minutes"`
	ContextLimit        int     `toml:"context_limit"`
}

// Pipeline contains worker timing, queue sizing, and emission settings.
type Pipeline struct {
	EmitIntervalMS         int     `toml:"emit_interval_ms"`
	QueuePollTimeoutMS     int     `toml:"queue_poll_timeout_ms"`
	QueueCapacity          int     `toml:"queue_capacity"`
	OverflowPolicy         string  `toml:"overflow_policy"`
	ShutdownTimeoutSeconds int     `toml:"shutdown_timeout_seconds"`
	NearDuplicateThreshold float64 `toml:"near_duplicate_threshold"`
	HeartbeatSeconds       int     `toml:"heartbeat_seconds"`
	SubscriberMailbox      int     `toml:"subscriber_mailbox"`
}

// Config encapsulates all configuration values for earmark.
//
// Sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Logging: log format and level
//   - Transcription / Shallow / Deep / Semantic: model backend settings
//   - Pipeline: queue sizing, polling, emission, and shutdown behavior
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Transcription Transcription `toml:"transcription"`
	Shallow       Shallow       `toml:"shallow"`
	Deep          Deep          `toml:"deep"`
	Semantic      Semantic      `toml:"semantic"`
	Pipeline      Pipeline      `toml:"pipeline"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/earmark/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("earmark.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// ArchivePath returns the location of the persisted transcript archive.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.Paths.DataDir, "transcript_archive.json")
}

// LockPath returns the daemon singleton lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "earmarkd.lock")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
