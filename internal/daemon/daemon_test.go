package daemon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coursewatch/internal/catalog"
	"coursewatch/internal/config"
	"coursewatch/internal/daemon"
	"coursewatch/internal/fetch"
	"coursewatch/internal/health"
	"coursewatch/internal/logging"
	"coursewatch/internal/seen"
	"coursewatch/internal/testsupport"
)

type fakeStrategy struct {
	listings [][]catalog.Item
	err      error
	calls    int
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Fetch(context.Context, fetch.Source) ([]catalog.Item, error) {
	idx := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if idx >= len(f.listings) {
		idx = len(f.listings) - 1
	}
	return f.listings[idx], nil
}

type fakeNotifier struct {
	digests  [][]seen.Record
	failNext int
}

func (f *fakeNotifier) SendDigest(_ context.Context, records []seen.Record) error {
	if f.failNext > 0 {
		f.failNext--
		return errors.New("smtp unavailable")
	}
	f.digests = append(f.digests, records)
	return nil
}

func (f *fakeNotifier) NotifyStartup(context.Context, string) error      { return nil }
func (f *fakeNotifier) NotifyError(context.Context, error, string) error { return nil }
func (f *fakeNotifier) TestNotification(context.Context) error           { return nil }

func course(id, title string) catalog.Item {
	return catalog.Item{ID: id, Title: title, URL: "https://www.udemy.com/course/" + id + "/"}
}

func newTestDaemon(t *testing.T, cfg *config.Config, strategy fetch.Strategy, notifier *fakeNotifier) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	selector := fetch.NewSelector(fetch.SelectorConfig{MaxAttempts: 1}, strategy)
	d, err := daemon.New(cfg, store, selector, notifier, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestRunOnceNotifiesOnlyNewItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	strategy := &fakeStrategy{listings: [][]catalog.Item{
		{course("a", "A"), course("b", "B")},
		{course("a", "A"), course("b", "B"), course("c", "C")},
	}}
	notifier := &fakeNotifier{}
	d := newTestDaemon(t, cfg, strategy, notifier)

	first := d.RunOnce(context.Background())
	if first.Result != health.Success || first.ItemsNew != 2 || first.ItemsNotified != 2 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	second := d.RunOnce(context.Background())
	if second.ItemsNew != 1 || second.ItemsNotified != 1 {
		t.Fatalf("unexpected second summary: %+v", second)
	}
	if len(notifier.digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(notifier.digests))
	}
	if len(notifier.digests[1]) != 1 || notifier.digests[1][0].Identity != "c" {
		t.Fatalf("second digest should carry only c: %+v", notifier.digests[1])
	}
}

func TestRunOnceSkipsDigestWhenNothingNew(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	strategy := &fakeStrategy{listings: [][]catalog.Item{{course("a", "A")}}}
	notifier := &fakeNotifier{}
	d := newTestDaemon(t, cfg, strategy, notifier)

	d.RunOnce(context.Background())
	summary := d.RunOnce(context.Background())
	if summary.Result != health.Success || summary.ItemsNew != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(notifier.digests) != 1 {
		t.Fatalf("repeat listing should not trigger a digest, got %d", len(notifier.digests))
	}
}

func TestFailedDigestRetriesWithNextCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	strategy := &fakeStrategy{listings: [][]catalog.Item{
		{course("a", "A"), course("b", "B")},
		{course("a", "A"), course("b", "B"), course("c", "C")},
	}}
	notifier := &fakeNotifier{failNext: 1}
	d := newTestDaemon(t, cfg, strategy, notifier)

	first := d.RunOnce(context.Background())
	if first.Result != health.Success {
		t.Fatalf("notification failure must not fail the cycle: %+v", first)
	}
	if first.ItemsNotified != 0 {
		t.Fatalf("no items should be confirmed: %+v", first)
	}

	second := d.RunOnce(context.Background())
	if second.ItemsNotified != 3 {
		t.Fatalf("expected digest with all pending items, got %+v", second)
	}
	if len(notifier.digests) != 1 || len(notifier.digests[0]) != 3 {
		t.Fatalf("digest should carry a, b, and c: %+v", notifier.digests)
	}
}

func TestFetchFailureDegradesHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Monitor.DegradedThreshold = 2
	cfg.Monitor.RecoveryThreshold = 4
	strategy := &fakeStrategy{err: fetch.ErrBlocked}
	d := newTestDaemon(t, cfg, strategy, &fakeNotifier{})

	for i := 0; i < 2; i++ {
		summary := d.RunOnce(context.Background())
		if summary.Result != health.BlockedFailure {
			t.Fatalf("expected blocked failure, got %+v", summary)
		}
	}
	if got := d.Monitor().State().Status; got != health.StatusDegraded {
		t.Fatalf("expected degraded health, got %s", got)
	}
}

func TestPersistenceFailureIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	strategy := &fakeStrategy{listings: [][]catalog.Item{{course("a", "A")}}}

	store, err := seen.Open(cfg)
	if err != nil {
		t.Fatalf("seen.Open: %v", err)
	}
	selector := fetch.NewSelector(fetch.SelectorConfig{MaxAttempts: 1}, strategy)
	d, err := daemon.New(cfg, store, selector, &fakeNotifier{}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	// Closing the store underneath the daemon makes the diff fail hard.
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	summary := d.RunOnce(context.Background())
	if summary.Result != health.FatalFailure {
		t.Fatalf("expected fatal failure, got %+v", summary)
	}
	if !d.Monitor().Failed() {
		t.Fatal("expected failed health state")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Monitor.PollIntervalHours = 1
	strategy := &fakeStrategy{listings: [][]catalog.Item{{}}}

	first := newTestDaemon(t, cfg, strategy, &fakeNotifier{})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer first.Stop(true)

	second := newTestDaemon(t, cfg, &fakeStrategy{listings: [][]catalog.Item{{}}}, &fakeNotifier{})
	err := second.Start(context.Background())
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopReleasesLock(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPollIntervalHours(1))
	first := newTestDaemon(t, cfg, &fakeStrategy{listings: [][]catalog.Item{{}}}, &fakeNotifier{})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first.Stop(true)

	second := newTestDaemon(t, cfg, &fakeStrategy{listings: [][]catalog.Item{{}}}, &fakeNotifier{})
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop failed: %v", err)
	}
	second.Stop(true)
}

// slowStrategy signals when its first fetch begins and then either waits
// out the delay or aborts on context cancellation.
type slowStrategy struct {
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (s *slowStrategy) Name() string { return "slow" }

func (s *slowStrategy) Fetch(ctx context.Context, _ fetch.Source) ([]catalog.Item, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-time.After(s.delay):
		return []catalog.Item{course("slow", "Slow")}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestGracefulStopWaitsForInFlightCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPollIntervalHours(1))
	strategy := &slowStrategy{delay: 300 * time.Millisecond, started: make(chan struct{})}
	notifier := &fakeNotifier{}
	d := newTestDaemon(t, cfg, strategy, notifier)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-strategy.started

	d.Stop(true)

	if got := d.State(); got != daemon.StateStopped {
		t.Fatalf("expected stopped state, got %s", got)
	}
	state := d.Monitor().State()
	if state.CyclesRun != 1 || state.Status != health.StatusHealthy || state.LastError != "" {
		t.Fatalf("in-flight cycle should have finished cleanly: %+v", state)
	}
	if len(notifier.digests) != 1 {
		t.Fatalf("expected the cycle's digest to go out, got %d", len(notifier.digests))
	}
}

func TestForcedStopCancelsInFlightCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPollIntervalHours(1))
	strategy := &slowStrategy{delay: time.Minute, started: make(chan struct{})}
	d := newTestDaemon(t, cfg, strategy, &fakeNotifier{})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-strategy.started

	began := time.Now()
	d.Stop(false)
	if elapsed := time.Since(began); elapsed > 5*time.Second {
		t.Fatalf("forced stop should not wait out the cycle, took %s", elapsed)
	}
	state := d.Monitor().State()
	if state.CyclesRun != 1 || state.LastError == "" {
		t.Fatalf("abandoned cycle should be recorded as a failure: %+v", state)
	}
}

func TestShutdownEscalatesAfterGrace(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPollIntervalHours(1))
	strategy := &slowStrategy{delay: time.Minute, started: make(chan struct{})}
	d := newTestDaemon(t, cfg, strategy, &fakeNotifier{})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-strategy.started

	began := time.Now()
	d.Shutdown(100 * time.Millisecond)
	if elapsed := time.Since(began); elapsed > 5*time.Second {
		t.Fatalf("shutdown should escalate after the grace window, took %s", elapsed)
	}
	if got := d.State(); got != daemon.StateStopped {
		t.Fatalf("expected stopped state, got %s", got)
	}
}

func TestDaemonStateTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPollIntervalHours(1))
	d := newTestDaemon(t, cfg, &fakeStrategy{listings: [][]catalog.Item{{}}}, &fakeNotifier{})

	if got := d.State(); got != daemon.StateStopped {
		t.Fatalf("expected stopped before start, got %s", got)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := d.State(); got != daemon.StateRunning {
		t.Fatalf("expected running, got %s", got)
	}
	status := d.Status(context.Background())
	if !status.Running || status.State != daemon.StateRunning || status.LockAcquiredAt.IsZero() {
		t.Fatalf("status should report a held lock and running state: %+v", status)
	}
	d.Stop(true)
	if got := d.State(); got != daemon.StateStopped {
		t.Fatalf("expected stopped after stop, got %s", got)
	}
}

func TestStatusReportsWithoutBlocking(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	strategy := &fakeStrategy{listings: [][]catalog.Item{{course("a", "A")}}}
	d := newTestDaemon(t, cfg, strategy, &fakeNotifier{})

	d.RunOnce(context.Background())

	deadline, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status := d.Status(deadline)
	if status.Health.CyclesRun != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Seen.Total != 1 {
		t.Fatalf("seen stats missing: %+v", status.Seen)
	}
	if status.Preferred != "fake" {
		t.Fatalf("unexpected preferred strategy: %q", status.Preferred)
	}
}
