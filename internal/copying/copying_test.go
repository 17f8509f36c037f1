package copying_test

import (
	"context"
	"testing"

	"porter/internal/copying"
	"porter/internal/logging"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/content"
	"porter/internal/stage"
	"porter/internal/testsupport"
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
	broken  map[string]bool
}

func (f *fakeTarget) Upload(ctx context.Context, destPath string, data []byte) error {
	if f.locked[destPath] {
		return services.Wrap(services.ErrLocked, "content", "upload", destPath+" is locked by another writer", nil)
	}
	if f.broken[destPath] {
		return services.Wrap(services.ErrExternal, "content", "upload", destPath+": quota exceeded", nil)
	}
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[destPath] = data
	return nil
}

func copyableWork(t *testing.T, store *records.Store, project *records.Project, items []records.WorkItem) *stage.Work {
	t.Helper()
	ctx := context.Background()
	if err := store.InsertBatches(ctx, project.ID, records.GroupNonProcessing, []records.BatchSeed{{Name: "copy_batch_1", Files: items}}); err != nil {
		t.Fatalf("InsertBatches: %v", err)
	}
	batches, err := store.BatchesForProject(ctx, project.ID, records.GroupNonProcessing)
	if err != nil {
		t.Fatalf("BatchesForProject: %v", err)
	}
	for _, transition := range []struct {
		from, to records.ProjectStatus
		stage    string
	}{
		{records.ProjectQueued, records.ProjectDiscovered, "discovery"},
		{records.ProjectDiscovered, records.ProjectTransformed, "transforming"},
	} {
		if _, err := store.AdvanceProject(ctx, project.ID, transition.from, transition.to, transition.stage, "stage finished"); err != nil {
			t.Fatalf("AdvanceProject: %v", err)
		}
	}
	if won, err := store.ClaimBatch(ctx, batches[0].ID, records.BatchInitiated); err != nil || !won {
		t.Fatalf("ClaimBatch: won=%v err=%v", won, err)
	}
	claimed, err := store.GetBatch(ctx, batches[0].ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	return &stage.Work{Project: project, Batch: claimed}
}

func TestExecuteCopiesVerbatimAndTracksDestinations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	target := &fakeTarget{}
	c := copying.NewWithDependencies(cfg, store, logging.NewNop(), fakeSource{}, target)
	work := copyableWork(t, store, project, []records.WorkItem{
		{SourcePath: "/src/logo.png", DestinationPath: "/dst/logo.png"},
		{SourcePath: "/src/styles.css", DestinationPath: "/dst/styles.css"},
	})

	if err := c.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(target.uploads["/dst/logo.png"]) != "body" {
		t.Fatalf("copy altered the bytes: %v", target.uploads)
	}

	pending, err := store.PendingTracking(ctx, project.ID)
	if err != nil {
		t.Fatalf("PendingTracking: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 tracked destinations, got %d", len(pending))
	}

	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectCopied {
		t.Fatalf("project status %s, want copied", got.Status)
	}
}

func TestExecuteLockedAndFailedItemsDoNotBlockAdvance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := testsupport.NewProject(t, store, "/content/acme/launch")
	target := &fakeTarget{
		locked: map[string]bool{"/dst/x": true},
		broken: map[string]bool{"/dst/y": true},
	}
	c := copying.NewWithDependencies(cfg, store, logging.NewNop(), fakeSource{}, target)
	work := copyableWork(t, store, project, []records.WorkItem{
		{SourcePath: "/x", DestinationPath: "/dst/x"},
		{SourcePath: "/y", DestinationPath: "/dst/y"},
		{SourcePath: "/z", DestinationPath: "/dst/z"},
	})

	if err := c.Execute(ctx, work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := target.uploads["/dst/z"]; !ok {
		t.Fatal("healthy item skipped after earlier failures")
	}

	// Hard failure feeds the ledger, soft failure does not.
	entries, err := store.RetryEntries(ctx, project.ID, "copying", 1)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/y" {
		t.Fatalf("unexpected ledger %+v", entries)
	}

	// Only the successful destination gets a tracking entry.
	pending, err := store.PendingTracking(ctx, project.ID)
	if err != nil {
		t.Fatalf("PendingTracking: %v", err)
	}
	if len(pending) != 1 || pending[0].FilePath != "/dst/z" {
		t.Fatalf("unexpected tracking %+v", pending)
	}

	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectCopied {
		t.Fatalf("failures blocked the project: %s", got.Status)
	}
}
