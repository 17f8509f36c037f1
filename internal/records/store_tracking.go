package records

import (
	"context"
	"fmt"
	"time"
)

// AppendTracking records promoted paths as pending verification. Re-promoting
// a path resets its entry to pending rather than duplicating it.
func (s *Store) AppendTracking(ctx context.Context, projectID int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tracking tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := timestamp(time.Now())
		for _, path := range paths {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO tracking_entries (project_id, file_path, preview_status, produced_at, updated_at)
                 VALUES (?, ?, ?, ?, ?)
                 ON CONFLICT (project_id, file_path)
                 DO UPDATE SET preview_status = ?, resource_path = NULL, updated_at = ?`,
				projectID, path, PreviewPending, now, now,
				PreviewPending, now,
			); err != nil {
				return fmt.Errorf("append tracking %s: %w", path, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tracking: %w", err)
		}
		return nil
	})
}

// PendingTracking lists entries awaiting verification for a project.
func (s *Store) PendingTracking(ctx context.Context, projectID int64) ([]*TrackingEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackingColumns+` FROM tracking_entries
         WHERE project_id = ? AND preview_status = ? ORDER BY id`,
		projectID, PreviewPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending tracking: %w", err)
	}
	defer rows.Close()

	var entries []*TrackingEntry
	for rows.Next() {
		entry, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// TrackingForProject lists all tracking entries for a project.
func (s *Store) TrackingForProject(ctx context.Context, projectID int64) ([]*TrackingEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackingColumns+` FROM tracking_entries WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("tracking for project: %w", err)
	}
	defer rows.Close()

	var entries []*TrackingEntry
	for rows.Next() {
		entry, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ResolveTracking finalizes a pending entry. Only the verification worker
// writes here; pending is the only state it overwrites.
func (s *Store) ResolveTracking(ctx context.Context, projectID int64, path string, status PreviewStatus, resourcePath string) error {
	now := timestamp(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tracking_entries SET preview_status = ?, resource_path = ?, updated_at = ?
         WHERE project_id = ? AND file_path = ? AND preview_status = ?`,
		status, nullableString(resourcePath), now, projectID, path, PreviewPending,
	)
	if err != nil {
		return fmt.Errorf("resolve tracking %s: %w", path, err)
	}
	return nil
}
