package main

import (
	"testing"

	"coursewatch/internal/config"
)

func TestRunOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"

	opts := runOptions(&cfg, "/tmp/cw.sock")
	if opts.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %q", opts.LogLevel)
	}
	if opts.SocketPath != "/tmp/cw.sock" {
		t.Fatalf("unexpected socket path %q", opts.SocketPath)
	}

	opts = runOptions(nil, "")
	if opts.LogLevel != "" || opts.SocketPath != "" {
		t.Fatalf("expected zero options for nil config, got %+v", opts)
	}
}
