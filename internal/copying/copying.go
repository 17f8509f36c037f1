package copying

import (
	"context"
	"log/slog"

	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/stage"
)

// SourceClient is the slice of the source store the copier reads from.
type SourceClient interface {
	FetchMetadata(ctx context.Context, path string) (content.Metadata, error)
	Download(ctx context.Context, downloadURL string) ([]byte, error)
}

// TargetClient receives verbatim copies at their final destination.
type TargetClient interface {
	Upload(ctx context.Context, destPath string, data []byte) error
}

// Copier moves non-processing items to their destination unchanged. Copied
// destinations are tracked for verification alongside promoted ones.
type Copier struct {
	store  *records.Store
	cfg    *config.Config
	logger *slog.Logger
	source SourceClient
	target TargetClient
	def    stage.Definition
}

// New constructs the copying stage handler using default dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger) *Copier {
	return NewWithDependencies(cfg, store, logger, content.NewSourceClient(cfg), content.NewTargetClient(cfg))
}

// NewWithDependencies allows injecting collaborators (used in tests).
func NewWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, source SourceClient, target TargetClient) *Copier {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "copying"))
	}
	return &Copier{
		store:  store,
		cfg:    cfg,
		logger: stageLogger,
		source: source,
		target: target,
		def:    definition(),
	}
}

func definition() stage.Definition {
	for _, def := range stage.Definitions() {
		if def.Name == "copying" {
			return def
		}
	}
	return stage.Definition{}
}

func (c *Copier) Prepare(ctx context.Context, work *stage.Work) error {
	if work.Batch == nil || len(work.Batch.Files) == 0 {
		return services.Wrap(services.ErrValidation, c.def.Name, "validate inputs",
			"claimed batch carries no work items", nil)
	}
	return nil
}

func (c *Copier) Execute(ctx context.Context, work *stage.Work) error {
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("starting copy",
		logging.String(logging.FieldBatch, work.Batch.Name),
		logging.Int("items", len(work.Batch.Files)))

	var copied []string
	tally, err := stage.RunItems(ctx, c.store, c.def, work, 1, func(ctx context.Context, item records.WorkItem) error {
		if err := c.copyItem(ctx, item); err != nil {
			return err
		}
		copied = append(copied, item.DestinationPath)
		return nil
	})
	if err != nil {
		return err
	}

	if len(copied) > 0 {
		if err := c.store.AppendTracking(ctx, work.Project.ID, copied); err != nil {
			return err
		}
	}
	return stage.Complete(ctx, c.store, logger, c.def, work, tally)
}

func (c *Copier) copyItem(ctx context.Context, item records.WorkItem) error {
	meta, err := c.source.FetchMetadata(ctx, item.SourcePath)
	if err != nil {
		return err
	}
	data, err := c.source.Download(ctx, meta.DownloadURL)
	if err != nil {
		return err
	}
	return c.target.Upload(ctx, item.DestinationPath, data)
}

func (c *Copier) HealthCheck(ctx context.Context) stage.Health {
	switch {
	case c.cfg.Source.BaseURL == "":
		return stage.Unhealthy(c.def.Name, "source store base URL not configured")
	case c.cfg.Target.BaseURL == "":
		return stage.Unhealthy(c.def.Name, "target store base URL not configured")
	}
	return stage.Healthy(c.def.Name)
}
