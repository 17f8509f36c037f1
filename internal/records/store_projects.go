package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateProject inserts a new project in the queued state. The project path
// is the unique key; creating a project at an existing path returns
// ErrDuplicateProject.
func (s *Store) CreateProject(ctx context.Context, projectPath, experience string, params map[string]string) (*Project, error) {
	projectPath = strings.TrimSpace(projectPath)
	experience = strings.TrimSpace(experience)
	if projectPath == "" {
		return nil, errors.New("project path is required")
	}
	if experience == "" {
		return nil, errors.New("experience is required")
	}

	var paramsJSON string
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = string(data)
	}

	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO projects (project_path, experience, status, params_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		projectPath,
		experience,
		ProjectQueued,
		nullableString(paramsJSON),
		now,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProject, projectPath)
		}
		return nil, fmt.Errorf("insert project: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches a project by identifier.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// GetProjectByPath fetches a project by its unique path.
func (s *Store) GetProjectByPath(ctx context.Context, projectPath string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_path = ?`, projectPath)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by path: %w", err)
	}
	return project, nil
}

// ListProjects returns projects filtered by status set (or all projects when
// no status is provided), ordered by creation time.
func (s *Store) ListProjects(ctx context.Context, statuses ...ProjectStatus) ([]*Project, error) {
	baseQuery := `SELECT ` + projectColumns + ` FROM projects`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// AdvanceProject moves a project from an expected status to the next one and
// appends the audit entry for the transition in the same transaction. The
// conditional update makes the advance idempotent: when the project is no
// longer in the expected status the call reports false without error and
// without duplicating the audit entry.
func (s *Store) AdvanceProject(ctx context.Context, id int64, from, to ProjectStatus, stage, message string) (bool, error) {
	ctx = ensureContext(ctx)
	var advanced bool
	err := retryOnBusy(ctx, func() error {
		advanced = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin advance tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := timestamp(time.Now())
		res, err := tx.ExecContext(
			ctx,
			`UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, now, id, from,
		)
		if err != nil {
			return fmt.Errorf("advance project: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("advance rows affected: %w", err)
		}
		if affected == 0 {
			return tx.Commit()
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO audit_log (project_id, stage, level, message, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, stage, "info", message, now,
		); err != nil {
			return fmt.Errorf("append advance audit: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit advance: %w", err)
		}
		advanced = true
		return nil
	})
	return advanced, err
}

// FailProject moves a project into the failed absorbing state unless it is
// already terminal.
func (s *Store) FailProject(ctx context.Context, id int64, stage, message string) error {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET status = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		ProjectFailed, now, id, ProjectCompleted, ProjectFailed, ProjectPaused,
	)
	if err != nil {
		return fmt.Errorf("fail project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return nil
	}
	return s.AppendAudit(ctx, AuditEntry{ProjectID: id, Stage: stage, Level: "error", Message: message})
}

// ReclaimStaleVerifying returns projects stuck in verifying past the cutoff
// to promoted so the verification ticker can claim them again. Verification
// holds the whole project rather than a batch row, so a daemon crash
// mid-verification leaves nothing for the batch reclaimer to find.
func (s *Store) ReclaimStaleVerifying(ctx context.Context, cutoff time.Time) (int64, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		ProjectPromoted, now, ProjectVerifying, timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale verification: %w", err)
	}
	return res.RowsAffected()
}

// PauseProject moves a non-terminal project into paused, remembering the
// prior status for resume.
func (s *Store) PauseProject(ctx context.Context, id int64) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET paused_from = status, status = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		ProjectPaused, now, id, ProjectCompleted, ProjectFailed, ProjectPaused,
	)
	if err != nil {
		return false, fmt.Errorf("pause project: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ResumeProject returns a paused project to the status it held when paused.
func (s *Store) ResumeProject(ctx context.Context, id int64) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET status = paused_from, paused_from = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND paused_from IS NOT NULL`,
		now, id, ProjectPaused,
	)
	if err != nil {
		return false, fmt.Errorf("resume project: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Stats returns project counts grouped into coarse lifecycle buckets.
func (s *Store) Stats(ctx context.Context) (StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM projects GROUP BY status`)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("project stats: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status ProjectStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StatusCounts{}, err
		}
		counts.Total += count
		switch status {
		case ProjectCompleted:
			counts.Completed += count
		case ProjectFailed:
			counts.Failed += count
		case ProjectPaused:
			counts.Paused += count
		default:
			counts.Active += count
		}
	}
	return counts, rows.Err()
}
