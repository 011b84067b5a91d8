package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"coursewatch/internal/catalog"
	"coursewatch/internal/daemon"
	"coursewatch/internal/fetch"
	"coursewatch/internal/ipc"
	"coursewatch/internal/logging"
	"coursewatch/internal/testsupport"
)

type staticStrategy struct {
	items []catalog.Item
}

func (s *staticStrategy) Name() string { return "static" }

func (s *staticStrategy) Fetch(context.Context, fetch.Source) ([]catalog.Item, error) {
	return s.items, nil
}

func newServerAndClient(t *testing.T, logPath string) (*ipc.Client, *daemon.Daemon) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	selector := fetch.NewSelector(fetch.SelectorConfig{MaxAttempts: 1}, &staticStrategy{
		items: []catalog.Item{{ID: "1", Title: "A", URL: "https://www.udemy.com/course/a/"}},
	})
	d, err := daemon.New(cfg, store, selector, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	socketPath := filepath.Join(t.TempDir(), "cw.sock")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server, err := ipc.NewServer(ctx, socketPath, d, logPath, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := ipc.Dial(socketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, d
}

func TestStatusOverSocket(t *testing.T) {
	client, d := newServerAndClient(t, "")

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not be running yet")
	}
	if status.HealthStatus != "healthy" {
		t.Fatalf("unexpected health: %q", status.HealthStatus)
	}
	if status.LockPath != d.LockPath() {
		t.Fatalf("lock path mismatch: %q vs %q", status.LockPath, d.LockPath())
	}
}

func TestRunOnceOverSocket(t *testing.T) {
	client, _ := newServerAndClient(t, "")

	resp, err := client.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if resp.Result != "success" {
		t.Fatalf("unexpected result: %+v", resp)
	}
	if resp.ItemsNew != 1 {
		t.Fatalf("expected 1 new item, got %+v", resp)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CyclesRun != 1 || status.SeenTotal != 1 {
		t.Fatalf("status not updated: %+v", status)
	}
	if status.LastSuccessAt.IsZero() {
		t.Fatalf("successful cycle should stamp last success: %+v", status)
	}
}

func TestStartStopOverSocket(t *testing.T) {
	client, _ := newServerAndClient(t, "")

	started, err := client.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !started.Started {
		t.Fatalf("daemon did not start: %+v", started)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.DaemonState != "running" || status.LockAcquiredAt.IsZero() {
		t.Fatalf("running daemon should report its state and lock time: %+v", status)
	}

	stopped, err := client.Stop(false)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !stopped.Stopped {
		t.Fatal("daemon did not stop")
	}

	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running || status.DaemonState != "stopped" {
		t.Fatalf("stopped daemon should report stopped state: %+v", status)
	}
}

func TestLogTailOverSocket(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "coursewatch.log")
	if err := os.WriteFile(logPath, []byte("first line\nsecond line\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	client, _ := newServerAndClient(t, logPath)

	resp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[1] != "second line" {
		t.Fatalf("unexpected lines: %+v", resp.Lines)
	}
}

func TestTestNotificationWithoutEmail(t *testing.T) {
	client, _ := newServerAndClient(t, "")

	resp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if resp.Sent {
		t.Fatal("notification should not send with email disabled")
	}
}
