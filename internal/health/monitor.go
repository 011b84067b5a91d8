package health

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coursewatch/internal/logging"
)

// Status is the monitor's view of the daemon.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Result classifies how a cycle ended.
type Result int

const (
	Success Result = iota
	TransientFailure
	BlockedFailure
	FatalFailure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case TransientFailure:
		return "transient_failure"
	case BlockedFailure:
		return "blocked_failure"
	case FatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// Outcome is the record of one completed cycle.
type Outcome struct {
	CycleID     string
	Result      Result
	Strategy    string
	ItemsListed int
	ItemsNew    int
	Duration    time.Duration
	Err         error
}

// State is a point-in-time snapshot for status reporting.
type State struct {
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CyclesRun           int64     `json:"cycles_run"`
	ItemsDiscovered     int64     `json:"items_discovered"`
	DigestsSent         int64     `json:"digests_sent"`
	Errors              int64     `json:"errors"`
	LastCycleAt         time.Time `json:"last_cycle_at"`
	LastSuccessAt       time.Time `json:"last_success_at"`
	LastStrategy        string    `json:"last_strategy,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Config sets the monitor thresholds.
type Config struct {
	// DegradedThreshold is the consecutive-failure count that flips the
	// daemon to degraded.
	DegradedThreshold int
	// RecoveryThreshold is the consecutive-failure count that triggers the
	// recovery callback (restarting the retrieval stack). It is never less
	// than DegradedThreshold.
	RecoveryThreshold int
	// StatusPath is where the JSON snapshot is persisted. Empty disables
	// the file.
	StatusPath string
	// OnRecovery runs when the recovery threshold is reached. Called
	// without the monitor lock held.
	OnRecovery func()
	Logger     *slog.Logger
}

// Monitor tracks cycle outcomes and derives the daemon's health state.
// Status reads never block on cycle work; the snapshot is guarded by a
// short-lived mutex only.
type Monitor struct {
	cfg Config

	mu    sync.Mutex
	state State
}

// NewMonitor builds a Monitor. Thresholds default to 3 and 5.
func NewMonitor(cfg Config) *Monitor {
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = 3
	}
	if cfg.RecoveryThreshold < cfg.DegradedThreshold {
		cfg.RecoveryThreshold = cfg.DegradedThreshold + 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Monitor{
		cfg:   cfg,
		state: State{Status: StatusHealthy},
	}
}

// RecordOutcome folds a finished cycle into the health state. A success
// clears the failure streak and restores healthy unless the daemon has
// already failed; fatal failures are terminal.
func (m *Monitor) RecordOutcome(outcome Outcome) {
	var recover func()

	m.mu.Lock()
	m.state.CyclesRun++
	m.state.LastCycleAt = time.Now().UTC()
	m.state.LastStrategy = outcome.Strategy

	switch outcome.Result {
	case Success:
		m.state.ItemsDiscovered += int64(outcome.ItemsNew)
		m.state.LastSuccessAt = m.state.LastCycleAt
		m.state.ConsecutiveFailures = 0
		m.state.LastError = ""
		if m.state.Status != StatusFailed {
			m.state.Status = StatusHealthy
		}
	case FatalFailure:
		m.state.Errors++
		m.state.ConsecutiveFailures++
		m.state.Status = StatusFailed
		if outcome.Err != nil {
			m.state.LastError = outcome.Err.Error()
		}
	default:
		m.state.Errors++
		m.state.ConsecutiveFailures++
		if outcome.Err != nil {
			m.state.LastError = outcome.Err.Error()
		}
		if m.state.Status != StatusFailed && m.state.ConsecutiveFailures >= m.cfg.DegradedThreshold {
			m.state.Status = StatusDegraded
		}
		if m.state.Status != StatusFailed && m.state.ConsecutiveFailures == m.cfg.RecoveryThreshold {
			recover = m.cfg.OnRecovery
		}
	}
	m.persistLocked()
	snapshot := m.state
	m.mu.Unlock()

	m.cfg.Logger.Info("cycle outcome recorded",
		logging.String(logging.FieldComponent, "health"),
		logging.String(logging.FieldCycleID, outcome.CycleID),
		logging.String("result", outcome.Result.String()),
		logging.String("status", string(snapshot.Status)),
		logging.Int("consecutive_failures", snapshot.ConsecutiveFailures),
		logging.Int("items_new", outcome.ItemsNew),
		logging.Duration("duration", outcome.Duration))

	if recover != nil {
		m.cfg.Logger.Warn("recovery threshold reached, restarting retrieval stack",
			logging.String(logging.FieldComponent, "health"),
			logging.Int("consecutive_failures", snapshot.ConsecutiveFailures))
		recover()
	}
}

// RecordDigest counts a successfully delivered digest.
func (m *Monitor) RecordDigest() {
	m.mu.Lock()
	m.state.DigestsSent++
	m.persistLocked()
	m.mu.Unlock()
}

// State returns a snapshot of the current health state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failed reports whether the daemon has hit a terminal failure.
func (m *Monitor) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status == StatusFailed
}

// persistLocked writes the JSON snapshot best-effort. A failed write never
// affects the in-memory state.
func (m *Monitor) persistLocked() {
	if m.cfg.StatusPath == "" {
		return
	}
	m.state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return
	}
	tmp := m.cfg.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		m.cfg.Logger.Debug("failed to write health status file",
			logging.String(logging.FieldComponent, "health"),
			logging.Error(err))
		return
	}
	if err := os.Rename(tmp, m.cfg.StatusPath); err != nil {
		m.cfg.Logger.Debug("failed to replace health status file",
			logging.String(logging.FieldComponent, "health"),
			logging.Error(err))
	}
}

// ReadStatusFile loads a previously persisted snapshot. Used by the CLI
// when the daemon is not running.
func ReadStatusFile(stateDir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, StatusFileName))
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// StatusFileName is the snapshot file kept in the state directory.
const StatusFileName = "health_status.json"

// StatusPath returns the snapshot path for a state directory.
func StatusPath(stateDir string) string {
	return filepath.Join(stateDir, StatusFileName)
}
