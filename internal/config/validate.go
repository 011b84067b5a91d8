package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateEmail(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	source := strings.TrimSpace(c.Catalog.SourceURL)
	if source == "" {
		return errors.New("catalog.source_url must be set")
	}
	if _, err := url.ParseRequestURI(source); err != nil {
		return fmt.Errorf("catalog.source_url: %w", err)
	}
	if api := strings.TrimSpace(c.Catalog.APIURL); api != "" {
		if _, err := url.ParseRequestURI(api); err != nil {
			return fmt.Errorf("catalog.api_url: %w", err)
		}
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.PollIntervalHours <= 0 {
		return errors.New("monitor.poll_interval_hours must be positive")
	}
	if c.Monitor.FetchTimeoutSec <= 0 {
		return errors.New("monitor.fetch_timeout must be positive")
	}
	if c.Monitor.MaxAttempts <= 0 {
		return errors.New("monitor.max_attempts must be positive")
	}
	if c.Monitor.BackoffBaseMS <= 0 {
		return errors.New("monitor.backoff_base_ms must be positive")
	}
	if c.Monitor.BackoffMultiplier < 1 {
		return errors.New("monitor.backoff_multiplier must be at least 1")
	}
	if c.Monitor.CycleBudgetMinutes <= 0 {
		return errors.New("monitor.cycle_budget_minutes must be positive")
	}
	if c.Monitor.DegradedThreshold <= 0 {
		return errors.New("monitor.degraded_threshold must be positive")
	}
	if c.Monitor.RecoveryThreshold < c.Monitor.DegradedThreshold {
		return errors.New("monitor.recovery_threshold must be at least monitor.degraded_threshold")
	}
	return nil
}

func (c *Config) validateEmail() error {
	if !c.Email.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Email.Recipient) == "" {
		return errors.New("email.recipient must be set when email.enabled is true")
	}
	if strings.TrimSpace(c.Email.SMTPServer) == "" {
		return errors.New("email.smtp_server must be set when email.enabled is true")
	}
	if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
		return errors.New("email.smtp_port must be a valid port")
	}
	if strings.TrimSpace(c.Email.Username) == "" {
		return errors.New("email.username must be set (or COURSEWATCH_SMTP_USERNAME) when email.enabled is true")
	}
	if strings.TrimSpace(c.Email.Password) == "" {
		return errors.New("email.password must be set (or COURSEWATCH_SMTP_PASSWORD) when email.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
