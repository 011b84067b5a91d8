// Package logging constructs slog loggers with console and JSON handlers,
// standardized attribute keys, and log-file retention helpers.
package logging
