package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/manifest"
	"porter/internal/notifications"
	"porter/internal/partition"
	"porter/internal/records"
	"porter/internal/scheduler"
	"porter/internal/stage"
)

// seeder partitions a project's work list into persisted batches.
type seeder interface {
	Seed(ctx context.Context, projectID int64, group records.ItemGroup, items []records.WorkItem) (int, error)
}

// Daemon coordinates the pipeline scheduler and the control surfaces
// (HTTP API, IPC) while enforcing single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *records.Store
	scheduler   *scheduler.Manager
	partitioner seeder
	notifier    notifications.Service
	api         *apiServer
	logPath     string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Projects     records.StatusCounts
	StageHealth  []stage.Health
	RecordDBPath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger, sched *scheduler.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "porterd.lock")
	d := &Daemon{
		cfg:         cfg,
		logger:      logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:       store,
		scheduler:   sched,
		partitioner: partition.New(store, cfg.Pipeline.ChunkSize),
		notifier:    notifications.NewService(cfg),
		logPath:     filepath.Join(cfg.Paths.LogDir, "porter.log"),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock and launches the scheduler and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another porter daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			cancel()
			d.scheduler.Stop()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("porter daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("porter daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// CreateProject parses and validates a raw manifest, registers the
// project, and partitions its items into batches for both groups. The
// pipeline picks the project up on the next scheduler tick.
func (d *Daemon) CreateProject(ctx context.Context, raw []byte) (*records.Project, int, int, error) {
	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, 0, 0, err
	}

	project, err := d.store.CreateProject(ctx, m.ProjectPath, m.Experience, m.Params)
	if err != nil {
		return nil, 0, 0, err
	}

	processing, nonProcessing := manifest.Split(m.Items)
	processingBatches, err := d.partitioner.Seed(ctx, project.ID, records.GroupProcessing, processing)
	if err != nil {
		d.failSeed(ctx, project.ID, err)
		return nil, 0, 0, fmt.Errorf("seed processing batches: %w", err)
	}
	nonProcessingBatches, err := d.partitioner.Seed(ctx, project.ID, records.GroupNonProcessing, nonProcessing)
	if err != nil {
		d.failSeed(ctx, project.ID, err)
		return nil, 0, 0, fmt.Errorf("seed copy batches: %w", err)
	}

	d.logger.Info("project created",
		logging.String(logging.FieldEventType, "project-created"),
		logging.Int64(logging.FieldProject, project.ID),
		logging.String("project_path", project.ProjectPath),
		logging.Int("processing_batches", processingBatches),
		logging.Int("copy_batches", nonProcessingBatches))
	_ = d.notifier.Publish(ctx, notifications.EventProjectCreated, notifications.Payload{
		"projectPath": project.ProjectPath,
		"items":       strconv.Itoa(len(m.Items)),
	})
	return project, processingBatches, nonProcessingBatches, nil
}

// failSeed parks a project whose batch partitioning failed after the record
// was created. Left queued, a batchless project would walk through every
// empty-group barrier to completed without doing any work, while the unique
// project path blocks a corrected re-trigger.
func (d *Daemon) failSeed(ctx context.Context, projectID int64, cause error) {
	if err := d.store.FailProject(ctx, projectID, "trigger", fmt.Sprintf("batch partitioning failed: %v", cause)); err != nil {
		d.logger.Error("failed to mark project failed after seed error",
			logging.Int64(logging.FieldProject, projectID),
			logging.Error(err))
	}
}

// ListProjects returns projects filtered by optional statuses.
func (d *Daemon) ListProjects(ctx context.Context, statuses ...records.ProjectStatus) ([]*records.Project, error) {
	return d.store.ListProjects(ctx, statuses...)
}

// GetProject returns a single project by id.
func (d *Daemon) GetProject(ctx context.Context, id int64) (*records.Project, error) {
	return d.store.GetProject(ctx, id)
}

// ProjectDetail aggregates a project with its batches and journals.
type ProjectDetail struct {
	Project  *records.Project
	Batches  []*records.Batch
	Tracking []*records.TrackingEntry
	Retries  []*records.RetryEntry
	Audit    []*records.AuditEntry
}

// DescribeProject loads the full detail view for one project.
func (d *Daemon) DescribeProject(ctx context.Context, id int64) (*ProjectDetail, error) {
	project, err := d.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}

	detail := &ProjectDetail{Project: project}
	for _, group := range []records.ItemGroup{records.GroupProcessing, records.GroupNonProcessing} {
		batches, err := d.store.BatchesForProject(ctx, id, group)
		if err != nil {
			return nil, err
		}
		detail.Batches = append(detail.Batches, batches...)
	}
	if detail.Tracking, err = d.store.TrackingForProject(ctx, id); err != nil {
		return nil, err
	}
	if detail.Retries, err = d.store.RetryLedger(ctx, id); err != nil {
		return nil, err
	}
	if detail.Audit, err = d.store.AuditTrail(ctx, id, 50); err != nil {
		return nil, err
	}
	return detail, nil
}

// ResumeProject returns a paused project to the status it was paused
// from. Failed and completed projects are terminal and stay put.
func (d *Daemon) ResumeProject(ctx context.Context, id int64) (bool, records.ProjectStatus, error) {
	resumed, err := d.store.ResumeProject(ctx, id)
	if err != nil {
		return false, "", err
	}
	project, err := d.store.GetProject(ctx, id)
	if err != nil {
		return resumed, "", err
	}
	if project == nil {
		return false, "", fmt.Errorf("project %d not found", id)
	}
	if resumed {
		d.logger.Info("project resumed",
			logging.String(logging.FieldEventType, "project-resumed"),
			logging.Int64(logging.FieldProject, id),
			logging.String("status", string(project.Status)))
	}
	return resumed, project.Status, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// APIAddr returns the bound HTTP API address, empty when the API is
// disabled or the daemon is stopped.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("project stats unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Projects:     counts,
		StageHealth:  d.scheduler.Health(ctx),
		RecordDBPath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
}
