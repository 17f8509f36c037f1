package stage

import (
	"context"
	"fmt"
	"log/slog"

	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
)

// RunItems applies op to every work item in the claimed batch and folds the
// outcomes into a tally. A single item's failure never aborts the batch:
// soft failures are recorded and skipped, hard failures land in the retry
// ledger with the supplied attempt number. Only context cancellation or a
// record store failure stops the loop early.
func RunItems(ctx context.Context, store *records.Store, def Definition, work *Work, attempt int, op func(context.Context, records.WorkItem) error) (*Tally, error) {
	tally := &Tally{}
	for _, item := range work.Batch.Files {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		err := op(ctx, item)
		if err == nil {
			tally.Success()
			continue
		}
		tally.Record(item.SourcePath, err)
		if !services.IsSoftFailure(err) {
			if ledgerErr := store.AppendRetry(ctx, work.Project.ID, def.Name, item.SourcePath, err.Error(), attempt); ledgerErr != nil {
				return tally, ledgerErr
			}
		}
	}
	return tally, nil
}

// Complete records the batch outcome and runs the project barrier: the
// batch moves to its stage-terminal status, a human-readable audit row is
// written, and when this was the last outstanding batch of the stage's
// group the project advances. The advance is a conditional update, so
// racing completions apply it exactly once.
func Complete(ctx context.Context, store *records.Store, logger *slog.Logger, def Definition, work *Work, tally *Tally) error {
	if err := store.FinishBatch(ctx, work.Batch.ID, def.Done); err != nil {
		return err
	}
	level := "info"
	if len(tally.Failures) > 0 || len(tally.SoftFailures) > 0 {
		level = "warn"
	}
	if err := store.AppendAudit(ctx, records.AuditEntry{
		ProjectID:  work.Project.ID,
		Stage:      def.Name,
		Level:      level,
		Message:    tally.Summary(def.Name, work.Batch.Name),
		Succeeded:  tally.Succeeded,
		SoftFailed: len(tally.SoftFailures),
		Failed:     len(tally.Failures),
	}); err != nil {
		return err
	}
	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch-finished"),
		logging.String(logging.FieldBatch, work.Batch.Name),
		logging.Int("succeeded", tally.Succeeded),
		logging.Int("soft_failed", len(tally.SoftFailures)),
		logging.Int("failed", len(tally.Failures)))

	advanced, err := AdvanceIfComplete(ctx, store, def, work.Project.ID)
	if err != nil {
		return err
	}
	if advanced {
		logger.Info("project advanced",
			logging.String(logging.FieldEventType, "project-advanced"),
			logging.String("to", string(def.NextProject)))
	}
	return nil
}

// AdvanceIfComplete advances the project to the stage's next status when no
// batch of the stage's group remains claimable or in flight. Safe to call
// from racing workers and from scheduler ticks for empty groups.
func AdvanceIfComplete(ctx context.Context, store *records.Store, def Definition, projectID int64) (bool, error) {
	remaining, err := store.RemainingForStage(ctx, projectID, def.Group, def.Ready)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	message := fmt.Sprintf("all %s batches finished %s", def.Group, def.Name)
	return store.AdvanceProject(ctx, projectID, def.ProjectStatus, def.NextProject, def.Name, message)
}
