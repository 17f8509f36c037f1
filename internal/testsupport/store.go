package testsupport

import (
	"context"
	"fmt"
	"testing"

	"porter/internal/config"
	"porter/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewProject creates a queued project for tests using the provided store.
func NewProject(t testing.TB, store *records.Store, path string) *records.Project {
	t.Helper()

	project, err := store.CreateProject(context.Background(), path, "summer-launch", map[string]string{"locale": "en"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return project
}

// SeedBatches inserts n single-item batches for a project and returns them.
func SeedBatches(t testing.TB, store *records.Store, projectID int64, group records.ItemGroup, n int) []*records.Batch {
	t.Helper()

	seeds := make([]records.BatchSeed, 0, n)
	for i := 1; i <= n; i++ {
		seeds = append(seeds, records.BatchSeed{
			Name: fmt.Sprintf("%s%d", group.Prefix(), i),
			Files: []records.WorkItem{{
				SourcePath:      fmt.Sprintf("/content/doc-%d", i),
				DestinationPath: fmt.Sprintf("/target/doc-%d", i),
			}},
		})
	}
	if err := store.InsertBatches(context.Background(), projectID, group, seeds); err != nil {
		t.Fatalf("InsertBatches: %v", err)
	}
	batches, err := store.BatchesForProject(context.Background(), projectID, group)
	if err != nil {
		t.Fatalf("BatchesForProject: %v", err)
	}
	return batches
}
