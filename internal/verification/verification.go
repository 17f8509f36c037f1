package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"porter/internal/bulkjob"
	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/notifications"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/cms"
	"porter/internal/stage"
)

// Poller drives one remote bulk operation over a path set.
type Poller interface {
	Submit(ctx context.Context, paths []string, op cms.Operation, opContext map[string]string) (bulkjob.Result, error)
}

// Verifier resolves pending tracking entries by driving the CMS preview
// operation. Paths the poller reports failed get exactly one second pass;
// second-pass results are authoritative. Paths still failing afterwards are
// terminal for the stage, but never block the project from completing.
type Verifier struct {
	store    *records.Store
	cfg      *config.Config
	logger   *slog.Logger
	poller   Poller
	notifier notifications.Service
	def      stage.Definition
}

// New constructs the verification stage handler using default dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger, notifier notifications.Service) *Verifier {
	return NewWithDependencies(cfg, store, logger, bulkjob.New(cms.NewConfiguredClient(cfg), cfg, logger), notifier)
}

// NewWithDependencies allows injecting the poller and notifier (used in
// tests).
func NewWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, poller Poller, notifier notifications.Service) *Verifier {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "verification"))
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Verifier{
		store:    store,
		cfg:      cfg,
		logger:   stageLogger,
		poller:   poller,
		notifier: notifier,
		def:      definition(),
	}
}

func definition() stage.Definition {
	for _, def := range stage.Definitions() {
		if def.Name == "verification" {
			return def
		}
	}
	return stage.Definition{}
}

func (v *Verifier) Prepare(ctx context.Context, work *stage.Work) error {
	if work.Project == nil {
		return services.Wrap(services.ErrValidation, v.def.Name, "validate inputs", "no project to verify", nil)
	}
	return nil
}

func (v *Verifier) Execute(ctx context.Context, work *stage.Work) error {
	logger := logging.WithContext(ctx, v.logger)
	project := work.Project

	pending, err := v.store.PendingTracking(ctx, project.ID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return v.finish(ctx, logger, project, 0, 0)
	}

	paths := make([]string, 0, len(pending))
	for _, entry := range pending {
		paths = append(paths, entry.FilePath)
	}
	opContext := map[string]string{"experience": project.Experience}

	logger.Info("starting verification",
		logging.Int("pending", len(paths)))

	first, firstErr := v.poller.Submit(ctx, paths, cms.OperationPreview, opContext)
	if firstErr != nil {
		logger.Warn("first verification pass did not complete",
			logging.String(logging.FieldEventType, "verification-submit-failed"),
			logging.Error(firstErr))
	}

	final := make(map[string]bulkjob.Outcome, len(paths))
	var failed []string
	for _, outcome := range first.Outcomes {
		final[outcome.Path] = outcome
		if !outcome.Success {
			failed = append(failed, outcome.Path)
			if err := v.store.AppendRetry(ctx, project.ID, v.def.Name, outcome.Path, "preview not confirmed", 1); err != nil {
				return err
			}
		}
	}

	// One bounded second pass for poller-reported failures; its results
	// overwrite the first pass. Auth failures are excluded since a retry
	// cannot change the outcome.
	if len(failed) > 0 && (firstErr == nil || !services.IsAuthError(firstErr)) {
		second, secondErr := v.poller.Submit(ctx, failed, cms.OperationPreview, opContext)
		if secondErr != nil {
			logger.Warn("second verification pass did not complete",
				logging.String(logging.FieldEventType, "verification-retry-failed"),
				logging.Error(secondErr))
		}
		for _, outcome := range second.Outcomes {
			final[outcome.Path] = outcome
		}
	}

	succeeded, terminal := 0, 0
	for _, path := range paths {
		outcome := final[path]
		if outcome.Success {
			succeeded++
			if err := v.store.ResolveTracking(ctx, project.ID, path, records.PreviewCompleted, outcome.ResourcePath); err != nil {
				return err
			}
			continue
		}
		terminal++
		if err := v.store.ResolveTracking(ctx, project.ID, path, records.PreviewFailed, ""); err != nil {
			return err
		}
		if err := v.store.AppendRetry(ctx, project.ID, v.def.Name, path, "preview not confirmed after retry", 2); err != nil {
			return err
		}
	}
	return v.finish(ctx, logger, project, succeeded, terminal)
}

// finish writes the audit row and completes the project. Partial success is
// an accepted terminal outcome, never a pipeline abort.
func (v *Verifier) finish(ctx context.Context, logger *slog.Logger, project *records.Project, succeeded, terminal int) error {
	level := "info"
	message := fmt.Sprintf("verification finished: %d confirmed", succeeded)
	if terminal > 0 {
		level = "warn"
		message = fmt.Sprintf("verification finished: %d confirmed, %d failed after retry", succeeded, terminal)
	}
	if err := v.store.AppendAudit(ctx, records.AuditEntry{
		ProjectID: project.ID,
		Stage:     v.def.Name,
		Level:     level,
		Message:   message,
		Succeeded: succeeded,
		Failed:    terminal,
	}); err != nil {
		return err
	}
	advanced, err := v.store.AdvanceProject(ctx, project.ID, records.ProjectVerifying, records.ProjectCompleted, v.def.Name, message)
	if err != nil {
		return err
	}
	if advanced {
		logger.Info("project completed",
			logging.String(logging.FieldEventType, "project-completed"),
			logging.Int("confirmed", succeeded),
			logging.Int("terminal_failures", terminal))
		_ = v.notifier.Publish(ctx, notifications.EventProjectCompleted, notifications.Payload{
			"projectPath": project.ProjectPath,
			"verified":    strconv.Itoa(succeeded),
			"failed":      strconv.Itoa(terminal),
		})
	}
	return nil
}

func (v *Verifier) HealthCheck(ctx context.Context) stage.Health {
	if v.cfg.CMS.BaseURL == "" {
		return stage.Unhealthy(v.def.Name, "cms base URL not configured")
	}
	return stage.Healthy(v.def.Name)
}
