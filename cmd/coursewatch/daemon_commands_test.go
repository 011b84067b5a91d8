package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a thread-safe wrapper around bytes.Buffer for use in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

func TestDaemonStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon")
	requireContains(t, out, "Health")
	requireContains(t, out, "healthy")
	requireContains(t, out, "Cycles run")
}

func TestRunOnceCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run-once"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("run-once: %v", err)
	}
	requireContains(t, out, "success")
	requireContains(t, out, "new: 1")

	// The same listing again yields nothing new.
	out, _, err = runCLI(t, []string{"run-once"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("run-once second: %v", err)
	}
	requireContains(t, out, "new: 0")
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := appendLine(env.logPath, "cycle started"); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "cycle started")
}

func TestLogsFollow(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := appendLine(env.logPath, "first"); err != nil {
		t.Fatalf("append first: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--socket", env.socketPath, "--config", env.configPath, "logs", "--follow"})
	cmd.SetContext(ctx)
	stdout := &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()

	waitFor(t, 2*time.Second, func() bool { return stdout.Len() > 0 })
	if err := appendLine(env.logPath, "second"); err != nil {
		t.Fatalf("append second: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return strings.Contains(stdout.String(), "second") })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("logs --follow did not exit")
	}
}

func TestTestNotifyWithoutEmail(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "email notifications not configured")
}

func TestStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath+".missing", env.configPath)
	if err != nil {
		t.Fatalf("status offline: %v", err)
	}
	requireContains(t, out, "daemon is not running")
}
