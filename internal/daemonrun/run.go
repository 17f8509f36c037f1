package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"porter/internal/config"
	"porter/internal/daemon"
	"porter/internal/ipc"
	"porter/internal/logging"
	"porter/internal/preflight"
	"porter/internal/records"
	"porter/internal/scheduler"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	SocketPath  string
}

// Run starts the porter daemon runtime loop and blocks until the context
// is cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("porter-%s.log", runID))

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update porter.log link: %v\n", err)
	}

	logCollaboratorSnapshot(logger, cfg)
	if err := runStartupChecks(signalCtx, cfg, logger); err != nil {
		return err
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "porterd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := records.Open(cfg)
	if err != nil {
		logger.Error("open record store", logging.Error(err))
		return err
	}
	defer store.Close()

	sched := scheduler.NewManager(cfg, store, logger)
	d, err := daemon.New(cfg, store, logger, sched)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon-start-failed"),
			logging.String(logging.FieldErrorHint, "check configuration and record database access"),
		)
	}

	<-signalCtx.Done()
	logger.Info("porter daemon shutting down")
	shutdownWithGrace(d, cfg, logger)
	return nil
}

// runStartupChecks aborts startup when a directory or disk-space check
// fails. Endpoint checks are advisory: collaborators may come up after
// the daemon does.
func runStartupChecks(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	failedLocal := make([]string, 0, len(results))
	for _, result := range results {
		if result.Passed {
			logger.Debug("startup check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("startup check failed",
			logging.String(logging.FieldEventType, "startup-check-failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
		if isLocalCheck(result.Name) {
			failedLocal = append(failedLocal, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	if len(failedLocal) > 0 {
		return fmt.Errorf("startup checks failed: %s", strings.Join(failedLocal, "; "))
	}
	return nil
}

func isLocalCheck(name string) bool {
	switch name {
	case "Data directory", "Log directory", "Data disk space":
		return true
	}
	return false
}

func shutdownWithGrace(d *daemon.Daemon, cfg *config.Config, logger *slog.Logger) {
	grace := time.Duration(cfg.Pipeline.ShutdownGraceSeconds) * time.Second
	if grace <= 0 {
		d.Stop()
		return
	}
	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("shutdown grace period elapsed before workers drained",
			logging.String(logging.FieldEventType, "shutdown-grace-elapsed"))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "porter.log")
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

func logCollaboratorSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("collaborator snapshot",
		logging.String(logging.FieldEventType, "collaborator-snapshot"),
		logging.Bool("source_configured", strings.TrimSpace(cfg.Source.BaseURL) != ""),
		logging.Bool("target_configured", strings.TrimSpace(cfg.Target.BaseURL) != ""),
		logging.Bool("cms_configured", strings.TrimSpace(cfg.CMS.BaseURL) != ""),
		logging.Bool("rewriter_configured", strings.TrimSpace(cfg.Rewriter.BaseURL) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Int("chunk_size", cfg.Pipeline.ChunkSize),
		logging.Int("tick_interval_seconds", cfg.Pipeline.TickInterval),
	)
}
