package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"coursewatch/internal/config"
	"coursewatch/internal/daemon"
	"coursewatch/internal/fetch"
	"coursewatch/internal/ipc"
	"coursewatch/internal/logging"
	"coursewatch/internal/notify"
	"coursewatch/internal/seen"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	SocketPath  string
}

// Run starts the coursewatch daemon runtime loop and blocks until SIGINT
// or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("coursewatch-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update coursewatch.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "coursewatch-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.StateDir, "coursewatch.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := seen.Open(cfg)
	if err != nil {
		logger.Error("open seen store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notify.NewService(cfg)
	selector, browserStrategy := buildSelector(cfg, logger)
	if browserStrategy != nil {
		defer browserStrategy.Close()
	}

	d, err := daemon.New(cfg, store, selector, notifier, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.StateDir, "coursewatch.sock")
	}
	// The daemon and IPC server hang off cmdCtx, not the signal context:
	// a signal must trigger a graceful Shutdown below instead of tearing
	// the in-flight cycle down with it.
	ipcServer, err := ipc.NewServer(cmdCtx, socketPath, d, logPath, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(cmdCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and state directory access"),
			logging.String(logging.FieldImpact, "daemon will not poll the catalog"),
		)
	} else {
		sendStartupNotification(signalCtx, notifier, logger)
	}

	<-signalCtx.Done()
	logger.Info("coursewatch daemon shutting down")
	d.Shutdown(cfg.CycleBudget())
	return nil
}

// buildSelector assembles the strategy chain from config: plain HTTP
// first, the stealth browser as fallback when enabled.
func buildSelector(cfg *config.Config, logger *slog.Logger) (*fetch.Selector, *fetch.BrowserStrategy) {
	httpStrategy := fetch.NewHTTPStrategy(
		fetch.WithClient(fetchClient(cfg)),
		fetch.WithLogger(logger),
	)
	strategies := []fetch.Strategy{httpStrategy}

	var browserStrategy *fetch.BrowserStrategy
	if cfg.Browser.Enabled {
		browserStrategy = fetch.NewBrowserStrategy(fetch.BrowserConfig{
			RemoteURL:  cfg.Browser.RemoteURL,
			Headless:   cfg.Browser.Headless,
			NavTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
			Logger:     logger,
		})
		strategies = append(strategies, browserStrategy)
	}

	selector := fetch.NewSelector(fetch.SelectorConfig{
		MaxAttempts:       cfg.Monitor.MaxAttempts,
		BackoffBase:       cfg.BackoffBase(),
		BackoffMultiplier: cfg.Monitor.BackoffMultiplier,
		Logger:            logger,
	}, strategies...)
	return selector, browserStrategy
}

// fetchClient bounds every listing attempt with the configured per-attempt
// fetch timeout.
func fetchClient(cfg *config.Config) *http.Client {
	timeout := cfg.FetchTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func sendStartupNotification(ctx context.Context, notifier notify.Service, logger *slog.Logger) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	notifyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := notifier.NotifyStartup(notifyCtx, hostname); err != nil {
		logger.Warn("startup notification failed",
			logging.String(logging.FieldComponent, "daemon"),
			logging.Error(err))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "coursewatch.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
