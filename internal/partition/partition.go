// Package partition splits ordered work-item lists into fixed-size batches
// with deterministic, 1-indexed names and persists them through the record
// store.
package partition

import (
	"context"
	"errors"
	"fmt"

	"porter/internal/records"
)

// DefaultChunkSize matches the pipeline default when no configuration is
// supplied.
const DefaultChunkSize = 200

// Plan splits items into ceil(len(items)/chunkSize) seeds. Naming starts at
// startIndex (1 for the initial partitioning; fragment folds continue from
// the existing batch count). The union of all seeds equals the input with no
// duplicates and no omissions.
func Plan(items []records.WorkItem, group records.ItemGroup, chunkSize, startIndex int) ([]records.BatchSeed, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if startIndex < 1 {
		startIndex = 1
	}
	if len(items) == 0 {
		return nil, nil
	}

	seeds := make([]records.BatchSeed, 0, (len(items)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(items); offset += chunkSize {
		end := offset + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := make([]records.WorkItem, end-offset)
		copy(chunk, items[offset:end])
		seeds = append(seeds, records.BatchSeed{
			Name:  fmt.Sprintf("%s%d", group.Prefix(), startIndex+len(seeds)),
			Files: chunk,
		})
	}
	return seeds, nil
}

// Partitioner writes batch plans through the record store.
type Partitioner struct {
	store     *records.Store
	chunkSize int
}

// New constructs a partitioner. A non-positive chunk size falls back to the
// default.
func New(store *records.Store, chunkSize int) *Partitioner {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Partitioner{store: store, chunkSize: chunkSize}
}

// Seed partitions the initial work list for a project and persists one batch
// row per chunk, all initiated. The two groups use disjoint name prefixes so
// their batch tables never collide.
func (p *Partitioner) Seed(ctx context.Context, projectID int64, group records.ItemGroup, items []records.WorkItem) (int, error) {
	seeds, err := Plan(items, group, p.chunkSize, 1)
	if err != nil {
		return 0, err
	}
	if len(seeds) == 0 {
		return 0, nil
	}
	if err := p.store.InsertBatches(ctx, projectID, group, seeds); err != nil {
		return 0, fmt.Errorf("persist %s batches: %w", group, err)
	}
	return len(seeds), nil
}

// Fold appends newly discovered items (e.g. fragment references) as fresh
// batches, continuing the deterministic numbering. Existing batches are never
// mutated after partitioning.
func (p *Partitioner) Fold(ctx context.Context, projectID int64, group records.ItemGroup, items []records.WorkItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	existing, err := p.store.BatchCount(ctx, projectID, group)
	if err != nil {
		return 0, err
	}
	seeds, err := Plan(items, group, p.chunkSize, existing+1)
	if err != nil {
		return 0, err
	}
	if err := p.store.InsertBatches(ctx, projectID, group, seeds); err != nil {
		return 0, fmt.Errorf("persist folded batches: %w", err)
	}
	return len(seeds), nil
}
