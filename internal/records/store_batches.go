package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertBatches persists one row per partitioned chunk, all in the initiated
// state, inside a single transaction.
func (s *Store) InsertBatches(ctx context.Context, projectID int64, group ItemGroup, seeds []BatchSeed) error {
	if len(seeds) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert batches tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := timestamp(time.Now())
		for _, seed := range seeds {
			filesJSON, err := encodeFiles(seed.Files)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO batches (project_id, item_group, name, status, files_json, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				projectID, group, seed.Name, BatchInitiated, filesJSON, now, now,
			); err != nil {
				return fmt.Errorf("insert batch %s: %w", seed.Name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit insert batches: %w", err)
		}
		return nil
	})
}

// BatchCount returns the number of batches for a project and group. Used to
// continue deterministic naming when folding discovered fragments into new
// batches.
func (s *Store) BatchCount(ctx context.Context, projectID int64, group ItemGroup) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM batches WHERE project_id = ? AND item_group = ?`,
		projectID, group,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count batches: %w", err)
	}
	return count, nil
}

// GetBatch fetches a batch by identifier.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// BatchesForProject returns all batches of a project and group ordered by
// creation.
func (s *Store) BatchesForProject(ctx context.Context, projectID int64, group ItemGroup) ([]*Batch, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+batchColumns+` FROM batches WHERE project_id = ? AND item_group = ? ORDER BY created_at, id`,
		projectID, group,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// BatchStatuses folds batch rows into the aggregate status table view.
func (s *Store) BatchStatuses(ctx context.Context, projectID int64, group ItemGroup) (map[string]BatchStatus, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, status FROM batches WHERE project_id = ? AND item_group = ?`,
		projectID, group,
	)
	if err != nil {
		return nil, fmt.Errorf("batch statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]BatchStatus)
	for rows.Next() {
		var name string
		var status BatchStatus
		if err := rows.Scan(&name, &status); err != nil {
			return nil, err
		}
		statuses[name] = status
	}
	return statuses, rows.Err()
}

// OldestReadyBatch returns the oldest batch eligible for a stage (FIFO within
// a project).
func (s *Store) OldestReadyBatch(ctx context.Context, projectID int64, group ItemGroup, ready BatchStatus) (*Batch, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+batchColumns+` FROM batches
         WHERE project_id = ? AND item_group = ? AND status = ?
         ORDER BY created_at, id LIMIT 1`,
		projectID, group, ready,
	)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oldest ready batch: %w", err)
	}
	return batch, nil
}

// HasInFlight reports whether any batch of the project and group is currently
// claimed. The single-flight rule skips the project while this holds.
func (s *Store) HasInFlight(ctx context.Context, projectID int64, group ItemGroup) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM batches WHERE project_id = ? AND item_group = ? AND status = ?`,
		projectID, group, BatchInProgress,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check in-flight batches: %w", err)
	}
	return count > 0, nil
}

// ClaimBatch attempts to claim a batch for processing. The conditional update
// is the claim: exactly one caller observes rows-affected 1; racing claimers
// see 0 and must skip the batch without side effects.
func (s *Store) ClaimBatch(ctx context.Context, batchID int64, ready BatchStatus) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE batches SET status = ?, claimed_from = ?, claimed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		BatchInProgress, ready, now, now, batchID, ready,
	)
	if err != nil {
		return false, fmt.Errorf("claim batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// ReleaseClaim rolls a claimed batch back to its pre-claim status. Used when
// dispatch fails after a successful claim so a future tick can retry.
func (s *Store) ReleaseClaim(ctx context.Context, batchID int64) error {
	now := timestamp(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`UPDATE batches SET status = claimed_from, claimed_from = NULL, claimed_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		now, batchID, BatchInProgress,
	)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// FinishBatch moves a claimed batch to its stage-terminal status.
func (s *Store) FinishBatch(ctx context.Context, batchID int64, to BatchStatus) error {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE batches SET status = ?, claimed_from = NULL, claimed_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		to, now, batchID, BatchInProgress,
	)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("finish batch %d: batch not in progress", batchID)
	}
	return nil
}

// RemainingForStage counts batches of the group that have not yet passed the
// stage (still eligible or in flight). Zero means the stage barrier is down
// and the project can advance.
func (s *Store) RemainingForStage(ctx context.Context, projectID int64, group ItemGroup, ready BatchStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM batches
         WHERE project_id = ? AND item_group = ? AND status IN (?, ?)`,
		projectID, group, ready, BatchInProgress,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count remaining batches: %w", err)
	}
	return count, nil
}

// ReclaimStaleClaims rolls batches whose claim is older than the cutoff back
// to their pre-claim status so they can be re-dispatched after a worker
// crash.
func (s *Store) ReclaimStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE batches SET status = claimed_from, claimed_from = NULL, claimed_at = NULL, updated_at = ?
         WHERE status = ? AND claimed_from IS NOT NULL AND claimed_at IS NOT NULL AND claimed_at < ?`,
		now, BatchInProgress, timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale claims: %w", err)
	}
	return res.RowsAffected()
}
