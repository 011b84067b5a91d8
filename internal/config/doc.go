// Package config loads, validates, and defaults coursewatch configuration
// from TOML files with environment overrides for credentials.
package config
