package promoting_test

import (
	"context"
	"testing"

	"porter/internal/logging"
	"porter/internal/promoting"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/stage"
	"porter/internal/testsupport"
	"porter/internal/transforming"
)

type fakeTarget struct {
	blobs   map[string][]byte
	locked  map[string]bool
	deleted []string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{blobs: make(map[string][]byte)}
}

func (f *fakeTarget) FetchMetadata(ctx context.Context, path string) (content.Metadata, error) {
	if _, ok := f.blobs[path]; !ok {
		return content.Metadata{}, services.Wrap(services.ErrNotFound, "content", "request", path, nil)
	}
	return content.Metadata{DownloadURL: path, Size: int64(len(f.blobs[path]))}, nil
}

func (f *fakeTarget) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	return f.blobs[downloadURL], nil
}

func (f *fakeTarget) Upload(ctx context.Context, destPath string, data []byte) error {
	if f.locked[destPath] {
		return services.Wrap(services.ErrLocked, "content", "upload", destPath+" is locked by another writer", nil)
	}
	f.blobs[destPath] = data
	return nil
}

func (f *fakeTarget) Delete(ctx context.Context, path string) error {
	delete(f.blobs, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func promotableWork(t *testing.T, store *records.Store, project *records.Project, items []records.WorkItem) *stage.Work {
	t.Helper()
	ctx := context.Background()
	if err := store.InsertBatches(ctx, project.ID, records.GroupProcessing, []records.BatchSeed{{Name: "batch_1", Files: items}}); err != nil {
		t.Fatalf("InsertBatches: %v", err)
	}
	batches, err := store.BatchesForProject(ctx, project.ID, records.GroupProcessing)
	if err != nil {
		t.Fatalf("BatchesForProject: %v", err)
	}
	batch := batches[0]
	// Walk batch and project to the states promotion expects.
	if won, err := store.ClaimBatch(ctx, batch.ID, records.BatchInitiated); err != nil || !won {
		t.Fatalf("ClaimBatch: won=%v err=%v", won, err)
	}
	if err := store.FinishBatch(ctx, batch.ID, records.BatchDiscovered); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}
	if won, err := store.ClaimBatch(ctx, batch.ID, records.BatchDiscovered); err != nil || !won {
		t.Fatalf("ClaimBatch: won=%v err=%v", won, err)
	}
	if err := store.FinishBatch(ctx, batch.ID, records.BatchTransformed); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}
	for _, transition := range []struct {
		from, to records.ProjectStatus
		stage    string
	}{
		{records.ProjectQueued, records.ProjectDiscovered, "discovery"},
		{records.ProjectDiscovered, records.ProjectTransformed, "transforming"},
		{records.ProjectTransformed, records.ProjectCopied, "copying"},
	} {
		if _, err := store.AdvanceProject(ctx, project.ID, transition.from, transition.to, transition.stage, "stage finished"); err != nil {
			t.Fatalf("AdvanceProject: %v", err)
		}
	}
	if won, err := store.ClaimBatch(ctx, batch.ID, records.BatchTransformed); err != nil || !won {
		t.Fatalf("claim for promoting: won=%v err=%v", won, err)
	}
	claimed, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	return &stage.Work{Project: project, Batch: claimed}
}

func TestExecutePromotesStagedArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	target := newFakeTarget()
	target.blobs[transforming.StagingPath("/dst/a.docx")] = []byte("artifact")

	p := promoting.NewWithDependencies(cfg, store, logging.NewNop(), target)
	work := promotableWork(t, store, project, []records.WorkItem{
		{SourcePath: "/src/a.docx", DestinationPath: "/dst/a.docx"},
	})

	if err := p.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(target.blobs["/dst/a.docx"]) != "artifact" {
		t.Fatalf("artifact not promoted: %v", target.blobs)
	}
	if len(target.deleted) != 1 || target.deleted[0] != transforming.StagingPath("/dst/a.docx") {
		t.Fatalf("staging copy not cleared: %v", target.deleted)
	}

	pending, err := store.PendingTracking(ctx, project.ID)
	if err != nil {
		t.Fatalf("PendingTracking: %v", err)
	}
	if len(pending) != 1 || pending[0].FilePath != "/dst/a.docx" {
		t.Fatalf("unexpected tracking %+v", pending)
	}

	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectPromoted {
		t.Fatalf("project status %s, want promoted", got.Status)
	}
}

func TestExecuteMissingStagedArtifactFeedsLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	target := newFakeTarget()
	target.blobs[transforming.StagingPath("/dst/good.docx")] = []byte("artifact")

	p := promoting.NewWithDependencies(cfg, store, logging.NewNop(), target)
	work := promotableWork(t, store, project, []records.WorkItem{
		{SourcePath: "/src/missing.docx", DestinationPath: "/dst/missing.docx"},
		{SourcePath: "/src/good.docx", DestinationPath: "/dst/good.docx"},
	})

	if err := p.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entries, err := store.RetryEntries(ctx, project.ID, "promoting", 1)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/src/missing.docx" {
		t.Fatalf("unexpected ledger %+v", entries)
	}
	if _, ok := target.blobs["/dst/good.docx"]; !ok {
		t.Fatal("surviving item was not promoted")
	}
}
