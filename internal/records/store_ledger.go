package records

import (
	"context"
	"fmt"
	"time"
)

// AppendRetry adds an append-only retry ledger entry. Entries are never
// mutated; a successful retry is recorded as a new row with the next attempt
// number and an empty error message.
func (s *Store) AppendRetry(ctx context.Context, projectID int64, stage, path, errorMessage string, attempt int) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO retry_ledger (project_id, stage, path, error_message, attempt, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, stage, path, nullableString(errorMessage), attempt, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append retry entry: %w", err)
	}
	return nil
}

// RetryEntries lists ledger rows for a project and stage at a given attempt.
func (s *Store) RetryEntries(ctx context.Context, projectID int64, stage string, attempt int) ([]*RetryEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, project_id, stage, path, error_message, attempt, created_at
         FROM retry_ledger WHERE project_id = ? AND stage = ? AND attempt = ? ORDER BY id`,
		projectID, stage, attempt,
	)
	if err != nil {
		return nil, fmt.Errorf("retry entries: %w", err)
	}
	defer rows.Close()

	var entries []*RetryEntry
	for rows.Next() {
		var (
			entry      RetryEntry
			errMsg     *string
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &entry.Stage, &entry.Path, &errMsg, &entry.Attempt, &createdRaw); err != nil {
			return nil, err
		}
		if errMsg != nil {
			entry.ErrorMessage = *errMsg
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// RetryLedger lists every ledger row for a project, oldest first.
func (s *Store) RetryLedger(ctx context.Context, projectID int64) ([]*RetryEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, project_id, stage, path, error_message, attempt, created_at
         FROM retry_ledger WHERE project_id = ? ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("retry ledger: %w", err)
	}
	defer rows.Close()

	var entries []*RetryEntry
	for rows.Next() {
		var (
			entry      RetryEntry
			errMsg     *string
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &entry.Stage, &entry.Path, &errMsg, &entry.Attempt, &createdRaw); err != nil {
			return nil, err
		}
		if errMsg != nil {
			entry.ErrorMessage = *errMsg
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// AppendAudit appends a human-auditable progress row.
func (s *Store) AppendAudit(ctx context.Context, entry AuditEntry) error {
	level := entry.Level
	if level == "" {
		level = "info"
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO audit_log (project_id, stage, level, message, succeeded, soft_failed, failed, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ProjectID, entry.Stage, level, entry.Message,
		entry.Succeeded, entry.SoftFailed, entry.Failed, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the newest audit rows for a project, oldest first.
// A non-positive limit returns the full trail.
func (s *Store) AuditTrail(ctx context.Context, projectID int64, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, project_id, stage, level, message, succeeded, soft_failed, failed, created_at
              FROM audit_log WHERE project_id = ? ORDER BY id`
	args := []any{projectID}
	if limit > 0 {
		query = `SELECT * FROM (` + query + ` DESC LIMIT ?) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			entry      AuditEntry
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &entry.Stage, &entry.Level, &entry.Message,
			&entry.Succeeded, &entry.SoftFailed, &entry.Failed, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
