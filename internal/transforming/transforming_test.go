package transforming_test

import (
	"context"
	"testing"

	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/services/rewriter"
	"porter/internal/stage"
	"porter/internal/testsupport"
	"porter/internal/transforming"
)

type fakeSource struct{}

func (fakeSource) FetchMetadata(ctx context.Context, path string) (content.Metadata, error) {
	return content.Metadata{DownloadURL: "http://source.test/blob" + path, Size: 4}, nil
}

func (fakeSource) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	return []byte("body"), nil
}

type fakeTarget struct {
	uploads map[string][]byte
	locked  map[string]bool
}

func (f *fakeTarget) Upload(ctx context.Context, destPath string, data []byte) error {
	if f.locked[destPath] {
		return services.Wrap(services.ErrLocked, "content", "upload", destPath+" is locked by another writer", nil)
	}
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[destPath] = data
	return nil
}

type fakeRewriter struct {
	failPath string
}

func (f *fakeRewriter) Transform(ctx context.Context, contents []byte, tctx rewriter.TransformContext) ([]byte, error) {
	if tctx.SourcePath == f.failPath {
		return nil, services.Wrap(services.ErrExternal, "rewriter", "transform", "unsupported layout", nil)
	}
	return append([]byte("rewritten:"), contents...), nil
}

func discoveredBatch(t *testing.T, store *records.Store, project *records.Project, items []records.WorkItem) *stage.Work {
	t.Helper()
	ctx := context.Background()
	if err := store.InsertBatches(ctx, project.ID, records.GroupProcessing, []records.BatchSeed{{Name: "batch_1", Files: items}}); err != nil {
		t.Fatalf("InsertBatches: %v", err)
	}
	batches, err := store.BatchesForProject(ctx, project.ID, records.GroupProcessing)
	if err != nil {
		t.Fatalf("BatchesForProject: %v", err)
	}
	// Walk the batch to the transformable state the way discovery would.
	if won, err := store.ClaimBatch(ctx, batches[0].ID, records.BatchInitiated); err != nil || !won {
		t.Fatalf("ClaimBatch: won=%v err=%v", won, err)
	}
	if err := store.FinishBatch(ctx, batches[0].ID, records.BatchDiscovered); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}
	if _, err := store.AdvanceProject(ctx, project.ID, records.ProjectQueued, records.ProjectDiscovered, "discovery", "all processing batches finished discovery"); err != nil {
		t.Fatalf("AdvanceProject: %v", err)
	}
	if won, err := store.ClaimBatch(ctx, batches[0].ID, records.BatchDiscovered); err != nil || !won {
		t.Fatalf("claim for transforming: won=%v err=%v", won, err)
	}
	claimed, err := store.GetBatch(ctx, batches[0].ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	return &stage.Work{Project: project, Batch: claimed}
}

func TestExecuteStagesTransformedArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	target := &fakeTarget{}
	tr := transforming.NewWithDependencies(cfg, store, logging.NewNop(), fakeSource{}, target, &fakeRewriter{})
	work := discoveredBatch(t, store, project, []records.WorkItem{
		{SourcePath: "/src/a.docx", DestinationPath: "/dst/a.docx"},
		{SourcePath: "/src/b.docx", DestinationPath: "/dst/b.docx"},
	})

	if err := tr.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	staged, ok := target.uploads[transforming.StagingPath("/dst/a.docx")]
	if !ok {
		t.Fatalf("artifact not staged: %v", target.uploads)
	}
	if string(staged) != "rewritten:body" {
		t.Fatalf("unexpected artifact %q", staged)
	}
	batch, err := store.GetBatch(ctx, work.Batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if batch.Status != records.BatchTransformed {
		t.Fatalf("batch status %s, want transformed", batch.Status)
	}
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectTransformed {
		t.Fatalf("project status %s, want transformed", got.Status)
	}
}

func TestExecuteContinuesPastRewriteFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	target := &fakeTarget{}
	tr := transforming.NewWithDependencies(cfg, store, logging.NewNop(), fakeSource{}, target, &fakeRewriter{failPath: "/src/bad.docx"})
	work := discoveredBatch(t, store, project, []records.WorkItem{
		{SourcePath: "/src/bad.docx", DestinationPath: "/dst/bad.docx"},
		{SourcePath: "/src/good.docx", DestinationPath: "/dst/good.docx"},
	})

	if err := tr.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := target.uploads[transforming.StagingPath("/dst/good.docx")]; !ok {
		t.Fatal("surviving item was not staged")
	}
	entries, err := store.RetryEntries(ctx, project.ID, "transforming", 1)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/src/bad.docx" {
		t.Fatalf("unexpected ledger %+v", entries)
	}
}

func TestExecuteTreatsLockedStagingAsSoftFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	target := &fakeTarget{locked: map[string]bool{transforming.StagingPath("/dst/x.docx"): true}}
	tr := transforming.NewWithDependencies(cfg, store, logging.NewNop(), fakeSource{}, target, &fakeRewriter{})
	work := discoveredBatch(t, store, project, []records.WorkItem{
		{SourcePath: "/src/x.docx", DestinationPath: "/dst/x.docx"},
	})

	if err := tr.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Locked destinations skip the ledger entirely.
	entries, err := store.RetryEntries(ctx, project.ID, "transforming", 1)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("soft failure fed the ledger: %+v", entries)
	}
	batch, err := store.GetBatch(ctx, work.Batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if batch.Status != records.BatchTransformed {
		t.Fatalf("batch status %s, want transformed", batch.Status)
	}
}
