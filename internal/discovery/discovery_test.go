package discovery_test

import (
	"context"
	"encoding/json"
	"testing"

	"porter/internal/discovery"
	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/stage"
	"porter/internal/testsupport"
)

type fakeSource struct {
	missing  map[string]bool
	sidecars map[string][]string
}

func (f *fakeSource) FetchMetadata(ctx context.Context, path string) (content.Metadata, error) {
	if f.missing[path] {
		return content.Metadata{}, services.Wrap(services.ErrNotFound, "content", "request", path, nil)
	}
	return content.Metadata{DownloadURL: "http://source.test/blob" + path, Size: 1}, nil
}

func (f *fakeSource) ReadJSON(ctx context.Context, path string, out any) error {
	fragments, ok := f.sidecars[path]
	if !ok {
		return services.Wrap(services.ErrNotFound, "content", "request", path, nil)
	}
	data, err := json.Marshal(map[string]any{"fragments": fragments})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func claim(t *testing.T, store *records.Store, project *records.Project, batch *records.Batch) *stage.Work {
	t.Helper()
	won, err := store.ClaimBatch(context.Background(), batch.ID, records.BatchInitiated)
	if err != nil || !won {
		t.Fatalf("ClaimBatch: won=%v err=%v", won, err)
	}
	claimed, err := store.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	return &stage.Work{Project: project, Batch: claimed}
}

func TestExecuteDiscoversBatchAndAdvancesProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	batches := testsupport.SeedBatches(t, store, project.ID, records.GroupProcessing, 1)

	d := discovery.NewWithDependencies(cfg, store, logging.NewNop(), &fakeSource{})
	work := claim(t, store, project, batches[0])
	if err := d.Prepare(ctx, work); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := d.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	batch, err := store.GetBatch(ctx, batches[0].ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if batch.Status != records.BatchDiscovered {
		t.Fatalf("batch status %s, want discovered", batch.Status)
	}
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectDiscovered {
		t.Fatalf("project status %s, want discovered", got.Status)
	}
}

func TestExecuteFoldsSidecarFragmentsIntoNewBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	if err := store.InsertBatches(ctx, project.ID, records.GroupProcessing, []records.BatchSeed{{
		Name: "batch_1",
		Files: []records.WorkItem{{
			SourcePath:      "/src/guide.docx",
			DestinationPath: "/dst/guides/guide.docx",
			MDPath:          "/src/guide.md",
		}},
	}}); err != nil {
		t.Fatalf("InsertBatches: %v", err)
	}
	batches, err := store.BatchesForProject(ctx, project.ID, records.GroupProcessing)
	if err != nil {
		t.Fatalf("BatchesForProject: %v", err)
	}

	source := &fakeSource{sidecars: map[string][]string{
		"/src/guide.md": {"/src/fragments/intro.docx"},
	}}
	d := discovery.NewWithDependencies(cfg, store, logging.NewNop(), source)
	work := claim(t, store, project, batches[0])
	if err := d.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The fragment landed in a new initiated batch, so the project barrier
	// must hold until that batch is discovered too.
	statuses, err := store.BatchStatuses(ctx, project.ID, records.GroupProcessing)
	if err != nil {
		t.Fatalf("BatchStatuses: %v", err)
	}
	if statuses["batch_1"] != records.BatchDiscovered {
		t.Fatalf("batch_1 status %s", statuses["batch_1"])
	}
	if statuses["batch_2"] != records.BatchInitiated {
		t.Fatalf("fragment batch missing or wrong status: %v", statuses)
	}
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectQueued {
		t.Fatalf("project advanced past an undiscovered fragment batch: %s", got.Status)
	}

	fragmentBatches, err := store.BatchesForProject(ctx, project.ID, records.GroupProcessing)
	if err != nil {
		t.Fatalf("BatchesForProject: %v", err)
	}
	fragment := fragmentBatches[1].Files[0]
	if fragment.SourcePath != "/src/fragments/intro.docx" || fragment.DestinationPath != "/dst/guides/intro.docx" {
		t.Fatalf("unexpected fragment item %+v", fragment)
	}
}

func TestExecuteRecordsMissingSourceInLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	batches := testsupport.SeedBatches(t, store, project.ID, records.GroupProcessing, 1)

	source := &fakeSource{missing: map[string]bool{"/content/doc-1": true}}
	d := discovery.NewWithDependencies(cfg, store, logging.NewNop(), source)
	work := claim(t, store, project, batches[0])
	if err := d.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entries, err := store.RetryEntries(ctx, project.ID, "discovery", 1)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/content/doc-1" {
		t.Fatalf("unexpected ledger %+v", entries)
	}
	// One failed item never blocks the batch or the project.
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectDiscovered {
		t.Fatalf("project status %s, want discovered", got.Status)
	}
}

func TestPrepareRejectsEmptyBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	d := discovery.NewWithDependencies(cfg, store, logging.NewNop(), &fakeSource{})
	err := d.Prepare(context.Background(), &stage.Work{Project: project, Batch: &records.Batch{}})
	if err == nil {
		t.Fatal("expected validation error for empty batch")
	}
}

func TestHealthCheckRequiresSourceURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d := discovery.NewWithDependencies(cfg, store, logging.NewNop(), &fakeSource{})
	if health := d.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}

	cfg.Source.BaseURL = ""
	d = discovery.NewWithDependencies(cfg, store, logging.NewNop(), &fakeSource{})
	if health := d.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy without source URL")
	}
}
