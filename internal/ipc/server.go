package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"coursewatch/internal/daemon"
	"coursewatch/internal/logging"
	"coursewatch/internal/logs"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. logPath
// backs the LogTail method.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logPath string, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logPath: logPath, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Coursewatch", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun coursewatch stop"))
	}
}

type service struct {
	daemon  *daemon.Daemon
	logPath string
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(req StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested", logging.Bool("force", req.Force))
	s.daemon.Stop(!req.Force)
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"),
		logging.Bool("force", req.Force))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.DaemonState = string(status.State)
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.LockAcquiredAt = status.LockAcquiredAt
	resp.NextCycleAt = status.NextCycleAt
	resp.HealthStatus = string(status.Health.Status)
	resp.ConsecutiveFailures = status.Health.ConsecutiveFailures
	resp.CyclesRun = status.Health.CyclesRun
	resp.ItemsDiscovered = status.Health.ItemsDiscovered
	resp.DigestsSent = status.Health.DigestsSent
	resp.Errors = status.Health.Errors
	resp.LastCycleAt = status.Health.LastCycleAt
	resp.LastSuccessAt = status.Health.LastSuccessAt
	resp.LastStrategy = status.Health.LastStrategy
	resp.LastError = status.Health.LastError
	resp.PreferredStrategy = status.Preferred
	resp.SeenTotal = status.Seen.Total
	resp.SeenUnnotified = status.Seen.Unnotified
	resp.LastSeenAt = status.Seen.LastSeenAt
	resp.StoreDBPath = status.StoreDBPath
	resp.LockPath = status.LockFilePath
	return nil
}

func (s *service) RunOnce(_ RunOnceRequest, resp *RunOnceResponse) error {
	s.log().Debug("manual cycle requested")
	summary := s.daemon.RunOnce(s.ctx)
	resp.CycleID = summary.CycleID
	resp.Result = summary.Result.String()
	resp.Strategy = summary.Strategy
	resp.ItemsListed = summary.ItemsListed
	resp.ItemsNew = summary.ItemsNew
	resp.ItemsNotified = summary.ItemsNotified
	resp.DurationMS = summary.Duration.Milliseconds()
	resp.Error = summary.Err
	s.log().Info("manual cycle finished",
		logging.String(logging.FieldEventType, "run_once"),
		logging.String(logging.FieldCycleID, summary.CycleID),
		logging.String("result", resp.Result))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	if s.logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, s.logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
