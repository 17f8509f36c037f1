package discovery

import (
	"context"
	"log/slog"

	"porter/internal/config"
	"porter/internal/logging"
	"porter/internal/manifest"
	"porter/internal/partition"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/stage"
)

// SourceClient is the slice of the source content store discovery needs.
type SourceClient interface {
	FetchMetadata(ctx context.Context, path string) (content.Metadata, error)
	ReadJSON(ctx context.Context, path string, out any) error
}

// sidecarDoc is the markdown sidecar format listing nested fragments.
type sidecarDoc struct {
	Fragments []string `json:"fragments"`
}

// Discoverer verifies that every work item's source exists and collects
// nested fragment references. Fragments are folded into new processing
// batches; the owning batch's file list is never mutated.
type Discoverer struct {
	store       *records.Store
	cfg         *config.Config
	logger      *slog.Logger
	source      SourceClient
	partitioner *partition.Partitioner
	def         stage.Definition
}

// New constructs the discovery stage handler using default dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger) *Discoverer {
	return NewWithDependencies(cfg, store, logger, content.NewSourceClient(cfg))
}

// NewWithDependencies allows injecting the source client (used in tests).
func NewWithDependencies(cfg *config.Config, store *records.Store, logger *slog.Logger, source SourceClient) *Discoverer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "discovery"))
	}
	return &Discoverer{
		store:       store,
		cfg:         cfg,
		logger:      stageLogger,
		source:      source,
		partitioner: partition.New(store, cfg.Pipeline.ChunkSize),
		def:         definition(),
	}
}

func definition() stage.Definition {
	for _, def := range stage.Definitions() {
		if def.Name == "discovery" {
			return def
		}
	}
	return stage.Definition{}
}

func (d *Discoverer) Prepare(ctx context.Context, work *stage.Work) error {
	if work.Batch == nil || len(work.Batch.Files) == 0 {
		return services.Wrap(services.ErrValidation, d.def.Name, "validate inputs",
			"claimed batch carries no work items", nil)
	}
	return nil
}

func (d *Discoverer) Execute(ctx context.Context, work *stage.Work) error {
	logger := logging.WithContext(ctx, d.logger)
	logger.Info("starting discovery",
		logging.String(logging.FieldBatch, work.Batch.Name),
		logging.Int("items", len(work.Batch.Files)))

	var fragments []records.WorkItem
	seen := make(map[string]struct{})

	tally, err := stage.RunItems(ctx, d.store, d.def, work, 1, func(ctx context.Context, item records.WorkItem) error {
		if _, err := d.source.FetchMetadata(ctx, item.SourcePath); err != nil {
			return err
		}
		discovered := item.Fragments
		if item.MDPath != "" {
			var sidecar sidecarDoc
			if err := d.source.ReadJSON(ctx, item.MDPath, &sidecar); err != nil {
				if !services.IsNotFound(err) {
					return err
				}
			} else {
				discovered = append(discovered, sidecar.Fragments...)
			}
		}
		for _, expanded := range fragmentItems(item, discovered) {
			if _, dup := seen[expanded.SourcePath]; dup {
				continue
			}
			seen[expanded.SourcePath] = struct{}{}
			fragments = append(fragments, expanded)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(fragments) > 0 {
		folded, err := d.partitioner.Fold(ctx, work.Project.ID, records.GroupProcessing, fragments)
		if err != nil {
			return err
		}
		logger.Info("folded fragments into new batches",
			logging.Int("fragments", len(fragments)),
			logging.Int("batches", folded))
	}

	return stage.Complete(ctx, d.store, logger, d.def, work, tally)
}

func (d *Discoverer) HealthCheck(ctx context.Context) stage.Health {
	if d.cfg.Source.BaseURL == "" {
		return stage.Unhealthy(d.def.Name, "source store base URL not configured")
	}
	return stage.Healthy(d.def.Name)
}

func fragmentItems(owner records.WorkItem, refs []string) []records.WorkItem {
	if len(refs) == 0 {
		return nil
	}
	annotated := owner
	annotated.Fragments = refs
	return manifest.FragmentItems(annotated)
}
