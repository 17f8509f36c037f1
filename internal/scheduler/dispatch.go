package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"porter/internal/logging"
	"porter/internal/notifications"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/stage"
)

// goroutineDispatcher is the default fire-and-forget dispatch mechanism:
// the worker runs on its own tracked goroutine and the tick moves on. The
// slots channel bounds concurrent workers to pipeline.dispatch_workers; a
// saturated pool rejects the dispatch so the tick releases the claim and a
// later tick retries.
type goroutineDispatcher struct {
	m     *Manager
	slots chan struct{}
}

func (d *goroutineDispatcher) Dispatch(ctx context.Context, def stage.Definition, work *stage.Work) error {
	handler, ok := d.m.handlers[def.Name]
	if !ok {
		return fmt.Errorf("no handler registered for stage %s", def.Name)
	}
	select {
	case d.slots <- struct{}{}:
	default:
		return fmt.Errorf("dispatch pool saturated (%d workers busy)", cap(d.slots))
	}
	d.m.workers.Add(1)
	go func() {
		defer d.m.workers.Done()
		defer func() { <-d.slots }()
		d.m.runWorker(ctx, def, handler, work)
	}()
	return nil
}

// runWorker executes one stage invocation and converts any failure into
// status and audit writes. A failing worker never takes the process down,
// and other projects are unaffected.
func (m *Manager) runWorker(ctx context.Context, def stage.Definition, handler stage.Handler, work *stage.Work) {
	requestID := uuid.NewString()
	workerCtx := services.WithRequestID(ctx, requestID)
	workerCtx = services.WithProject(workerCtx, work.Project.ProjectPath)
	workerCtx = services.WithStage(workerCtx, def.Name)
	if work.Batch != nil {
		workerCtx = services.WithBatch(workerCtx, work.Batch.Name)
	}
	logger := logging.WithContext(workerCtx, m.logger)

	defer func() {
		if r := recover(); r != nil {
			m.handleWorkerFailure(ctx, def, work, fmt.Errorf("stage panic: %v", r))
		}
	}()

	if err := handler.Prepare(workerCtx, work); err != nil {
		m.handleWorkerFailure(ctx, def, work, err)
		return
	}
	if err := handler.Execute(workerCtx, work); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("worker interrupted by shutdown")
			return
		}
		m.handleWorkerFailure(ctx, def, work, err)
		return
	}
}

// handleWorkerFailure marks the claimed batch as errored and parks the
// project: validation and configuration errors pause it for operator
// intervention, everything else fails it. Uses a fresh context so shutdown
// does not lose the status writes.
func (m *Manager) handleWorkerFailure(ctx context.Context, def stage.Definition, work *stage.Work, err error) {
	logger := m.logger.With(
		logging.String(logging.FieldStage, def.Name),
		logging.Int64(logging.FieldProject, work.Project.ID))
	logger.Error("stage worker failed",
		logging.String(logging.FieldEventType, "worker-failed"),
		logging.Error(err))

	writeCtx := context.WithoutCancel(ctx)
	if work.Batch != nil {
		if finishErr := m.store.FinishBatch(writeCtx, work.Batch.ID, records.BatchError); finishErr != nil {
			logger.Error("failed to mark batch errored", logging.Error(finishErr))
		}
	}
	if auditErr := m.store.AppendAudit(writeCtx, records.AuditEntry{
		ProjectID: work.Project.ID,
		Stage:     def.Name,
		Level:     "error",
		Message:   fmt.Sprintf("%s failed: %v", def.Name, err),
	}); auditErr != nil {
		logger.Error("failed to append failure audit row", logging.Error(auditErr))
	}

	if services.FailureStatus(err) == records.ProjectPaused {
		if _, pauseErr := m.store.PauseProject(writeCtx, work.Project.ID); pauseErr != nil {
			logger.Error("failed to pause project", logging.Error(pauseErr))
		}
		_ = m.notifier.Publish(writeCtx, notifications.EventProjectPaused, notifications.Payload{
			"projectPath": work.Project.ProjectPath,
			"reason":      err.Error(),
		})
		return
	}
	if failErr := m.store.FailProject(writeCtx, work.Project.ID, def.Name, err.Error()); failErr != nil {
		logger.Error("failed to mark project failed", logging.Error(failErr))
	}
	_ = m.notifier.Publish(writeCtx, notifications.EventStageFailed, notifications.Payload{
		"stage":       def.Name,
		"projectPath": work.Project.ProjectPath,
		"error":       err.Error(),
	})
}
