package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"coursewatch/internal/config"
	"coursewatch/internal/health"
	"coursewatch/internal/ipc"
	"coursewatch/internal/seen"
)

const pollStep = 200 * time.Millisecond

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch spawns a detached daemon process via the CLI's hidden daemon
// subcommand and releases the handle so it outlives the caller.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfgPath := strings.TrimSpace(opts.ConfigPath); cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the IPC socket until it accepts connections and
// returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	err := await(timeout, func() (bool, error) {
		c, dialErr := ipc.Dial(socketPath)
		if dialErr != nil {
			return false, dialErr
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// EnsureStarted connects to a running daemon or launches one, then makes
// sure its polling loop is started.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		if client, err = WaitForClient(socketPath, waitTimeout); err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	if status, statusErr := client.Status(); statusErr == nil && status != nil && status.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	if resp == nil {
		return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}, nil
	}

	message := strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		return StartResult{State: StartStateStarted, Launched: launched, Message: message}, nil
	case strings.EqualFold(message, "daemon already running"):
		if launched {
			return StartResult{State: StartStateStarted, Launched: true, Message: message}, nil
		}
		return StartResult{State: StartStateAlreadyRunning, Message: message}, nil
	case message != "":
		return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
	default:
		return StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}, nil
	}
}

// WaitForShutdown blocks until daemon IPC disappears or reports
// not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	err := await(timeout, func() (bool, error) {
		reachable, status, probeErr := probe(socketPath)
		if probeErr != nil {
			return false, probeErr
		}
		if !reachable {
			return true, nil
		}
		if status != nil && !status.Running {
			return true, nil
		}
		return false, errors.New("daemon still running")
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// ProcessInfo reports whether daemon IPC is reachable and the daemon PID
// when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	reachable, status, err := probe(socketPath)
	if err != nil || !reachable {
		return reachable, 0, err
	}
	if status == nil {
		return true, 0, nil
	}
	return true, status.PID, nil
}

// probe dials the socket and fetches a status snapshot. A missing socket
// is reported as unreachable, not as an error.
func probe(socketPath string) (bool, *ipc.StatusResponse, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, nil, nil
	}
	return true, status, nil
}

// StopAndTerminate requests a graceful stop over IPC and escalates to
// SIGKILL via the pid file when the process outlives gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}

	var lockPath, storeDBPath string
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		lockPath = status.LockPath
		storeDBPath = status.StoreDBPath
		pid = status.PID
	}
	resp, err := client.Stop(false)
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil || !alive {
		return result, nil
	}

	if livePID != 0 {
		pid = livePID
	}
	stateDir := DeriveStateDir(lockPath, storeDBPath, cfg)
	if stateDir == "" {
		return result, errors.New("unable to determine daemon state directory")
	}
	killedPID, killErr := ForceKillProcess(
		filepath.Join(stateDir, "coursewatch.pid"),
		filepath.Join(stateDir, "coursewatch.lock"),
		pid,
	)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// DeriveStateDir determines the daemon state directory from status hints,
// falling back to configuration.
func DeriveStateDir(lockPath, storeDBPath string, cfg *config.Config) string {
	switch {
	case lockPath != "":
		return filepath.Dir(lockPath)
	case storeDBPath != "":
		return filepath.Dir(storeDBPath)
	case cfg != nil && strings.TrimSpace(cfg.Paths.StateDir) != "":
		return cfg.Paths.StateDir
	default:
		return ""
	}
}

// ForceKillProcess sends SIGKILL to the daemon process recorded in the
// pid file and cleans up the pid and lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	switch {
	case err == nil:
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	case !errors.Is(err, os.ErrNotExist):
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// from the seen database and the persisted health snapshot when the daemon
// is unreachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*ipc.StatusResponse, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	statusResp := &ipc.StatusResponse{}

	if client, err := ipc.Dial(socketPath); err == nil {
		resp, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && resp != nil {
			statusResp = resp
		}
	}

	if !statusResp.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if store, openErr := seen.Open(cfg); openErr == nil {
			stats, statsErr := store.Stats(queryCtx)
			dbPath := store.Path()
			_ = store.Close()
			if statsErr == nil {
				statusResp.SeenTotal = stats.Total
				statusResp.SeenUnnotified = stats.Unnotified
				statusResp.LastSeenAt = stats.LastSeenAt
				statusResp.StoreDBPath = dbPath
			}
		}

		if state, readErr := health.ReadStatusFile(cfg.Paths.StateDir); readErr == nil {
			statusResp.HealthStatus = string(state.Status)
			statusResp.ConsecutiveFailures = state.ConsecutiveFailures
			statusResp.CyclesRun = state.CyclesRun
			statusResp.ItemsDiscovered = state.ItemsDiscovered
			statusResp.DigestsSent = state.DigestsSent
			statusResp.Errors = state.Errors
			statusResp.LastCycleAt = state.LastCycleAt
			statusResp.LastSuccessAt = state.LastSuccessAt
			statusResp.LastStrategy = state.LastStrategy
			statusResp.LastError = state.LastError
		}
	}

	return statusResp, nil
}

// await retries step every pollStep until it reports done or the timeout
// elapses; the last step error shapes the timeout error.
func await(timeout time.Duration, step func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		done, err := step()
		if done {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(pollStep)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return lastErr
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
