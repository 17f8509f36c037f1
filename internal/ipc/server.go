package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"porter/internal/api"
	"porter/internal/daemon"
	"porter/internal/logging"
	"porter/internal/records"
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

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
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
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Porter", srv); err != nil {
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
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun porter daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
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

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Projects = api.FromStatusCounts(status.Projects)
	resp.StageHealth = api.FromStageHealth(status.StageHealth)
	resp.RecordDBPath = status.RecordDBPath
	resp.LockPath = status.LockFilePath
	return nil
}

func (s *service) ProjectCreate(req ProjectCreateRequest, resp *ProjectCreateResponse) error {
	s.log().Debug("project create requested")
	project, processing, nonProcessing, err := s.daemon.CreateProject(s.ctx, req.Manifest)
	if err != nil {
		return err
	}
	resp.Project = api.FromProject(project)
	resp.ProcessingBatches = processing
	resp.NonProcessingCount = nonProcessing
	s.log().Info("project created via IPC",
		logging.String(logging.FieldEventType, "project_create"),
		logging.Int64(logging.FieldProject, project.ID))
	return nil
}

func (s *service) ProjectList(req ProjectListRequest, resp *ProjectListResponse) error {
	statuses := make([]records.ProjectStatus, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := records.ParseProjectStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	projects, err := s.daemon.ListProjects(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Projects = api.FromProjects(projects)
	return nil
}

func (s *service) ProjectDescribe(req ProjectDescribeRequest, resp *ProjectDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid project id %d", req.ID)
	}
	detail, err := s.daemon.DescribeProject(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if detail == nil {
		return fmt.Errorf("project %d not found", req.ID)
	}
	resp.Project = api.FromProject(detail.Project)
	resp.Batches = make([]api.Batch, 0, len(detail.Batches))
	for _, batch := range detail.Batches {
		resp.Batches = append(resp.Batches, api.FromBatch(batch))
	}
	resp.Tracking = api.FromTracking(detail.Tracking)
	resp.Retries = api.FromRetries(detail.Retries)
	resp.Audit = api.FromAudit(detail.Audit)
	return nil
}

func (s *service) ProjectRetry(req ProjectRetryRequest, resp *ProjectRetryResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid project id %d", req.ID)
	}
	s.log().Debug("project retry requested", logging.Int64(logging.FieldProject, req.ID))
	resumed, status, err := s.daemon.ResumeProject(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Resumed = resumed
	resp.Status = string(status)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
