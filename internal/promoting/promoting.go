package promoting

import (
	"context"
	"log/slog"

	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/stage"
	"porter/internal/transforming"
)

// TargetClient is the slice of the target store promotion needs: it moves
// staged artifacts into their final destination within the same store.
type TargetClient interface {
	FetchMetadata(ctx context.Context, path string) (content.Metadata, error)
	Download(ctx context.Context, downloadURL string) ([]byte, error)
	Upload(ctx context.Context, destPath string, data []byte) error
	Delete(ctx context.Context, path string) error
}

// Promoter publishes staged artifacts to the destination tree and records
// one pending tracking entry per promoted path for verification.
type Promoter struct {
	store  *records.Store
	cfg    *config.Config
	logger *slog.Logger
	target TargetClient
	def    stage.Definition
}

// New constructs the promoting stage handler using default dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger) *Promoter {
	return NewWithDependencies(cfg, store, logger, content.NewTargetClient(cfg))
}

// NewWithDependencies allows injecting the target client (used in tests).
func NewWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, target TargetClient) *Promoter {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "promoting"))
	}
	return &Promoter{
		store:  store,
		cfg:    cfg,
		logger: stageLogger,
		target: target,
		def:    definition(),
	}
}

func definition() stage.Definition {
	for _, def := range stage.Definitions() {
		if def.Name == "promoting" {
			return def
		}
	}
	return stage.Definition{}
}

func (p *Promoter) Prepare(ctx context.Context, work *stage.Work) error {
	if work.Batch == nil || len(work.Batch.Files) == 0 {
		return services.Wrap(services.ErrValidation, p.def.Name, "validate inputs",
			"claimed batch carries no work items", nil)
	}
	return nil
}

func (p *Promoter) Execute(ctx context.Context, work *stage.Work) error {
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("starting promotion",
		logging.String(logging.FieldBatch, work.Batch.Name),
		logging.Int("items", len(work.Batch.Files)))

	var promoted []string
	tally, err := stage.RunItems(ctx, p.store, p.def, work, 1, func(ctx context.Context, item records.WorkItem) error {
		if err := p.promoteItem(ctx, item); err != nil {
			return err
		}
		promoted = append(promoted, item.DestinationPath)
		return nil
	})
	if err != nil {
		return err
	}

	if len(promoted) > 0 {
		if err := p.store.AppendTracking(ctx, work.Project.ID, promoted); err != nil {
			return err
		}
	}
	return stage.Complete(ctx, p.store, logger, p.def, work, tally)
}

func (p *Promoter) promoteItem(ctx context.Context, item records.WorkItem) error {
	staging := transforming.StagingPath(item.DestinationPath)
	meta, err := p.target.FetchMetadata(ctx, staging)
	if err != nil {
		return err
	}
	artifact, err := p.target.Download(ctx, meta.DownloadURL)
	if err != nil {
		return err
	}
	if err := p.target.Upload(ctx, item.DestinationPath, artifact); err != nil {
		return err
	}
	// Staged copy is no longer needed once the artifact is live.
	if err := p.target.Delete(ctx, staging); err != nil {
		logging.WithContext(ctx, p.logger).Warn("failed to clear staging copy",
			logging.String("path", staging),
			logging.Error(err))
	}
	return nil
}

func (p *Promoter) HealthCheck(ctx context.Context) stage.Health {
	if p.cfg.Target.BaseURL == "" {
		return stage.Unhealthy(p.def.Name, "target store base URL not configured")
	}
	return stage.Healthy(p.def.Name)
}
