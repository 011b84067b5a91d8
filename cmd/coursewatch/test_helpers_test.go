package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coursewatch/internal/catalog"
	"coursewatch/internal/config"
	"coursewatch/internal/daemon"
	"coursewatch/internal/fetch"
	"coursewatch/internal/ipc"
	"coursewatch/internal/logging"
	"coursewatch/internal/seen"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *seen.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	logPath    string
	cancel     context.CancelFunc
}

type fixedStrategy struct {
	items []catalog.Item
}

func (f *fixedStrategy) Name() string { return "fixed" }

func (f *fixedStrategy) Fetch(context.Context, fetch.Source) ([]catalog.Item, error) {
	return f.items, nil
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Email.Enabled = false
	cfg := &cfgVal
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store, err := seen.Open(cfg)
	if err != nil {
		t.Fatalf("seen.Open: %v", err)
	}

	selector := fetch.NewSelector(fetch.SelectorConfig{MaxAttempts: 1}, &fixedStrategy{
		items: []catalog.Item{{ID: "101", Title: "Intro to Go", URL: "https://www.udemy.com/course/intro-to-go/"}},
	})

	d, err := daemon.New(cfg, store, selector, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.StateDir, "cli.sock")
	logPath := filepath.Join(cfg.Paths.LogDir, "coursewatch.log")
	srv, err := ipc.NewServer(ctx, socketPath, d, logPath, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		store.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\n\n[email]\nenabled = false\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !bytes.Contains([]byte(haystack), []byte(needle)) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
