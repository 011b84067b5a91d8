package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"coursewatch/internal/config"
	"coursewatch/internal/fetch"
	"coursewatch/internal/health"
	"coursewatch/internal/logging"
	"coursewatch/internal/notify"
	"coursewatch/internal/seen"
)

// ErrAlreadyRunning reports that another daemon instance holds the
// exclusivity lock for this state directory.
var ErrAlreadyRunning = errors.New("another coursewatch daemon instance is already running")

// State is the daemon lifecycle phase.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Daemon coordinates the polling loop and enforces single-instance
// execution per state directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *seen.Store
	selector *fetch.Selector
	notifier notify.Service
	monitor  *health.Monitor

	lockPath string
	lock     *flock.Flock

	mu             sync.Mutex
	state          State
	startedAt      time.Time
	lockAcquiredAt time.Time
	cycleCtx       context.Context
	cycleCancel    context.CancelFunc
	stop           chan struct{}
	stopSignaled   bool
	wake           chan struct{}
	loopDone       chan struct{}
	nextCycleAt    time.Time

	// cycleMu serializes scheduled and on-demand cycles.
	cycleMu sync.Mutex
}

// Status represents daemon runtime information. It is assembled from
// short-lived locks so a status query never waits on an in-flight cycle.
type Status struct {
	State          State
	Running        bool
	PID            int
	StartedAt      time.Time
	LockAcquiredAt time.Time
	NextCycleAt    time.Time
	Health         health.State
	Seen           seen.Stats
	Preferred      string
	StoreDBPath    string
	LockFilePath   string
}

// New constructs a daemon with initialized dependencies. The health
// monitor is owned by the daemon so its recovery hook can restart the
// retrieval stack.
func New(cfg *config.Config, store *seen.Store, selector *fetch.Selector, notifier notify.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || selector == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, selector, and logger")
	}
	if notifier == nil {
		notifier = notify.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "coursewatch.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		selector: selector,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		state:    StateStopped,
	}
	d.monitor = health.NewMonitor(health.Config{
		DegradedThreshold: cfg.Monitor.DegradedThreshold,
		RecoveryThreshold: cfg.Monitor.RecoveryThreshold,
		StatusPath:        health.StatusPath(cfg.Paths.StateDir),
		OnRecovery:        d.recoverRetrieval,
		Logger:            logger,
	})
	return d, nil
}

// Start acquires the daemon lock and launches the polling loop. The first
// cycle runs immediately; subsequent cycles follow the configured
// interval. ctx is the parent of every cycle's budget context, so it
// should outlive graceful shutdown; a forced stop cancels cycles itself.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateStopped {
		d.mu.Unlock()
		return errors.New("daemon already running")
	}
	d.state = StateStarting
	d.mu.Unlock()

	ok, err := d.lock.TryLock()
	if err != nil {
		d.setState(StateStopped)
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		d.setState(StateStopped)
		return ErrAlreadyRunning
	}

	d.mu.Lock()
	now := time.Now()
	d.startedAt = now
	d.lockAcquiredAt = now
	d.cycleCtx, d.cycleCancel = context.WithCancel(ctx)
	d.stop = make(chan struct{})
	d.stopSignaled = false
	d.wake = make(chan struct{}, 1)
	d.loopDone = make(chan struct{})
	d.state = StateRunning
	cycleCtx, stop, done := d.cycleCtx, d.stop, d.loopDone
	d.mu.Unlock()

	d.logger.Info("daemon started",
		logging.String(logging.FieldComponent, "daemon"),
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.cfg.PollInterval()))

	go d.loop(cycleCtx, stop, done)
	return nil
}

// Stop halts the polling loop and releases the daemon lock. A graceful
// stop lets an in-flight cycle run to completion and only then tears
// down; a forced stop cancels the cycle context and abandons it.
func (d *Daemon) Stop(graceful bool) {
	if !d.beginStop(graceful) {
		return
	}
	d.mu.Lock()
	done := d.loopDone
	d.mu.Unlock()
	if done != nil {
		<-done
	}
	d.finishStop()
}

// Shutdown stops the daemon gracefully, escalating to a forced stop when
// the in-flight cycle does not finish within grace.
func (d *Daemon) Shutdown(grace time.Duration) {
	if !d.beginStop(true) {
		return
	}
	d.mu.Lock()
	done := d.loopDone
	d.mu.Unlock()
	if done != nil {
		timer := time.NewTimer(grace)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			d.logger.Warn("cycle outlived the shutdown grace period, cancelling",
				logging.String(logging.FieldComponent, "daemon"),
				logging.Duration("grace", grace))
			d.cancelCycle()
			<-done
		}
	}
	d.finishStop()
}

// beginStop flips the daemon to stopping and tells the loop to finish.
// It reports false when there is nothing to stop. Safe to call more than
// once: a forced stop issued while a graceful one is waiting cancels the
// in-flight cycle.
func (d *Daemon) beginStop(graceful bool) bool {
	d.mu.Lock()
	if d.state == StateStopped {
		d.mu.Unlock()
		return false
	}
	d.state = StateStopping
	if d.stop != nil && !d.stopSignaled {
		close(d.stop)
		d.stopSignaled = true
	}
	d.mu.Unlock()

	if !graceful {
		d.cancelCycle()
	}
	return true
}

func (d *Daemon) cancelCycle() {
	d.mu.Lock()
	cancel := d.cycleCancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// finishStop releases the lock and resets the loop plumbing. Idempotent,
// so concurrent stop callers agree on a single transition to stopped.
func (d *Daemon) finishStop() {
	d.mu.Lock()
	if d.state == StateStopped {
		d.mu.Unlock()
		return
	}
	d.state = StateStopped
	cancel := d.cycleCancel
	d.cycleCtx = nil
	d.cycleCancel = nil
	d.stop = nil
	d.wake = nil
	d.loopDone = nil
	d.nextCycleAt = time.Time{}
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.String(logging.FieldComponent, "daemon"),
			logging.Error(err))
	}
	d.logger.Info("daemon stopped", logging.String(logging.FieldComponent, "daemon"))
}

func (d *Daemon) setState(state State) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

// State reports the current lifecycle phase.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop(false)
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RunOnce executes a single cycle on demand, serialized with the
// scheduled loop. It works whether or not the loop is running.
func (d *Daemon) RunOnce(ctx context.Context) CycleSummary {
	return d.executeCycle(ctx)
}

// Wake asks the loop to run the next cycle now instead of waiting out the
// interval.
func (d *Daemon) Wake() {
	d.mu.Lock()
	wake := d.wake
	d.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// TestNotification sends a test message using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if !d.cfg.Email.Enabled {
		return false, "email notifications not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status without blocking on cycle work.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	state := d.state
	startedAt := d.startedAt
	lockAcquiredAt := d.lockAcquiredAt
	next := d.nextCycleAt
	d.mu.Unlock()

	status := Status{
		State:          state,
		Running:        state == StateRunning,
		PID:            os.Getpid(),
		StartedAt:      startedAt,
		LockAcquiredAt: lockAcquiredAt,
		NextCycleAt:    next,
		Health:         d.monitor.State(),
		Preferred:      d.selector.Preferred(),
		StoreDBPath:    d.store.Path(),
		LockFilePath:   d.lockPath,
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.Seen = stats
	}
	return status
}

// Monitor exposes the health monitor for status consumers.
func (d *Daemon) Monitor() *health.Monitor {
	return d.monitor
}

// LockPath returns the exclusivity lock file path.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// loop drives scheduled cycles. The stop channel only prevents the next
// cycle from being scheduled; an in-flight cycle keeps ctx and finishes,
// which is what distinguishes graceful stop from a forced one.
func (d *Daemon) loop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	interval := d.cfg.PollInterval()
	for {
		summary := d.executeCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if summary.Result == health.FatalFailure {
			d.logger.Error("halting polling loop after fatal failure",
				logging.String(logging.FieldComponent, "daemon"),
				logging.String(logging.FieldCycleID, summary.CycleID),
				logging.String("error", summary.Err))
			if err := d.notifier.NotifyError(ctx, errors.New(summary.Err), "persistence"); err != nil {
				d.logger.Warn("failed to send failure notification",
					logging.String(logging.FieldComponent, "daemon"),
					logging.Error(err))
			}
			return
		}

		select {
		case <-stop:
			return
		default:
		}

		d.mu.Lock()
		d.nextCycleAt = time.Now().Add(interval)
		wake := d.wake
		d.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// recoverRetrieval restarts the retrieval stack after a deep failure
// streak. Resetting the selector drops the sticky strategy preference so
// the next cycle probes from the primary again.
func (d *Daemon) recoverRetrieval() {
	d.selector.Reset()
}
