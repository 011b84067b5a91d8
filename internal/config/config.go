package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Catalog contains the sources the monitor polls for free courses.
type Catalog struct {
	// SourceURL is the listing page scraped by the HTTP and browser strategies.
	SourceURL string `toml:"source_url"`
	// APIURL, when set, is tried first as a JSON listing endpoint.
	APIURL   string `toml:"api_url"`
	Category string `toml:"category"`
}

// Monitor contains cycle scheduling and retry behavior.
type Monitor struct {
	PollIntervalHours  int     `toml:"poll_interval_hours"`
	FetchTimeoutSec    int     `toml:"fetch_timeout"`
	MaxAttempts        int     `toml:"max_attempts"`
	BackoffBaseMS      int     `toml:"backoff_base_ms"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	CycleBudgetMinutes int     `toml:"cycle_budget_minutes"`
	DegradedThreshold  int     `toml:"degraded_threshold"`
	RecoveryThreshold  int     `toml:"recovery_threshold"`
}

// Browser contains settings for the headless-browser fallback strategy.
type Browser struct {
	Enabled bool `toml:"enabled"`
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty means launch a local browser.
	RemoteURL     string `toml:"remote_url"`
	Headless      bool   `toml:"headless"`
	NavTimeoutSec int    `toml:"nav_timeout"`
}

// Email contains SMTP digest delivery settings. Username and password may
// also come from the COURSEWATCH_SMTP_USERNAME / COURSEWATCH_SMTP_PASSWORD
// environment variables.
type Email struct {
	Enabled    bool   `toml:"enabled"`
	Recipient  string `toml:"recipient"`
	SMTPServer string `toml:"smtp_server"`
	SMTPPort   int    `toml:"smtp_port"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	TimeoutSec int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for coursewatch.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Catalog: course listing sources
//   - Monitor: cycle scheduling, retry, and health thresholds
//   - Browser: headless-browser fallback strategy
//   - Email: SMTP digest delivery
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Catalog Catalog `toml:"catalog"`
	Monitor Monitor `toml:"monitor"`
	Browser Browser `toml:"browser"`
	Email   Email   `toml:"email"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/coursewatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and env overrides applied.
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
		expanded, err := ExpandPath(path)
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

	projectPath, err := filepath.Abs("coursewatch.toml")
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

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = ExpandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv("COURSEWATCH_SMTP_USERNAME")); v != "" {
		c.Email.Username = v
	}
	if v := strings.TrimSpace(os.Getenv("COURSEWATCH_SMTP_PASSWORD")); v != "" {
		c.Email.Password = v
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the cycle interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalHours) * time.Hour
}

// FetchTimeout returns the per-attempt fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Monitor.FetchTimeoutSec) * time.Second
}

// CycleBudget returns the wall-clock budget for one complete cycle.
func (c *Config) CycleBudget() time.Duration {
	return time.Duration(c.Monitor.CycleBudgetMinutes) * time.Minute
}

// BackoffBase returns the initial retry backoff delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Monitor.BackoffBaseMS) * time.Millisecond
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// WriteSampleConfig writes the sample config to path, refusing to overwrite.
func WriteSampleConfig(path string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return expanded, fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return expanded, fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return expanded, fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return expanded, fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}

// ExpandPath resolves ~ prefixes and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
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
