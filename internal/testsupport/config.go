package testsupport

import (
	"path/filepath"
	"testing"

	"coursewatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Email and the browser strategy are disabled so tests never leave the
// machine.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Email.Enabled = false
	cfg.Browser.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithEmail enables email notifications with test credentials.
func WithEmail(recipient string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Email.Enabled = true
		cfg.Email.Recipient = recipient
		cfg.Email.Username = "sender@example.com"
		cfg.Email.Password = "secret"
	}
}

// WithPollIntervalHours overrides the polling cadence.
func WithPollIntervalHours(hours int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Monitor.PollIntervalHours = hours
	}
}
