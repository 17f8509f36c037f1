package transforming

import (
	"context"
	"log/slog"
	"path"

	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/services/rewriter"
	"porter/internal/stage"
)

// SourceClient is the slice of the source store the transformer reads from.
type SourceClient interface {
	FetchMetadata(ctx context.Context, path string) (content.Metadata, error)
	Download(ctx context.Context, downloadURL string) ([]byte, error)
}

// TargetClient receives transformed artifacts in the staging tree.
type TargetClient interface {
	Upload(ctx context.Context, destPath string, data []byte) error
}

// RewriteClient transforms document bytes.
type RewriteClient interface {
	Transform(ctx context.Context, contents []byte, tctx rewriter.TransformContext) ([]byte, error)
}

// Transformer rewrites processing-group documents and stages the artifacts
// for promotion.
type Transformer struct {
	store    *records.Store
	cfg      *config.Config
	logger   *slog.Logger
	source   SourceClient
	target   TargetClient
	rewriter RewriteClient
	def      stage.Definition
}

// New constructs the transforming stage handler using default dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger) *Transformer {
	return NewWithDependencies(cfg, store, logger,
		content.NewSourceClient(cfg), content.NewTargetClient(cfg), rewriter.NewConfiguredClient(cfg))
}

// NewWithDependencies allows injecting collaborators (used in tests).
func NewWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, source SourceClient, target TargetClient, rewrite RewriteClient) *Transformer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "transforming"))
	}
	return &Transformer{
		store:    store,
		cfg:      cfg,
		logger:   stageLogger,
		source:   source,
		target:   target,
		rewriter: rewrite,
		def:      definition(),
	}
}

func definition() stage.Definition {
	for _, def := range stage.Definitions() {
		if def.Name == "transforming" {
			return def
		}
	}
	return stage.Definition{}
}

// StagingPath returns where a transformed artifact waits before promotion.
func StagingPath(destinationPath string) string {
	return path.Join("/staging", destinationPath)
}

func (t *Transformer) Prepare(ctx context.Context, work *stage.Work) error {
	if work.Batch == nil || len(work.Batch.Files) == 0 {
		return services.Wrap(services.ErrValidation, t.def.Name, "validate inputs",
			"claimed batch carries no work items", nil)
	}
	return nil
}

func (t *Transformer) Execute(ctx context.Context, work *stage.Work) error {
	logger := logging.WithContext(ctx, t.logger)
	logger.Info("starting transformation",
		logging.String(logging.FieldBatch, work.Batch.Name),
		logging.Int("items", len(work.Batch.Files)))

	tally, err := stage.RunItems(ctx, t.store, t.def, work, 1, func(ctx context.Context, item records.WorkItem) error {
		return t.transformItem(ctx, work.Project, item)
	})
	if err != nil {
		return err
	}
	return stage.Complete(ctx, t.store, logger, t.def, work, tally)
}

func (t *Transformer) transformItem(ctx context.Context, project *records.Project, item records.WorkItem) error {
	meta, err := t.source.FetchMetadata(ctx, item.SourcePath)
	if err != nil {
		return err
	}
	contents, err := t.source.Download(ctx, meta.DownloadURL)
	if err != nil {
		return err
	}
	artifact, err := t.rewriter.Transform(ctx, contents, rewriter.TransformContext{
		SourcePath:      item.SourcePath,
		DestinationPath: item.DestinationPath,
		MDPath:          item.MDPath,
		Experience:      project.Experience,
	})
	if err != nil {
		return err
	}
	return t.target.Upload(ctx, StagingPath(item.DestinationPath), artifact)
}

func (t *Transformer) HealthCheck(ctx context.Context) stage.Health {
	switch {
	case t.cfg.Source.BaseURL == "":
		return stage.Unhealthy(t.def.Name, "source store base URL not configured")
	case t.cfg.Target.BaseURL == "":
		return stage.Unhealthy(t.def.Name, "target store base URL not configured")
	case t.cfg.Rewriter.BaseURL == "":
		return stage.Unhealthy(t.def.Name, "rewriter base URL not configured")
	}
	return stage.Healthy(t.def.Name)
}
