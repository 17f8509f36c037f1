package records

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const projectColumns = "id, project_path, experience, status, paused_from, params_json, created_at, updated_at"

const batchColumns = "id, project_id, item_group, name, status, claimed_from, claimed_at, files_json, created_at, updated_at"

const trackingColumns = "id, project_id, file_path, preview_status, resource_path, produced_at, updated_at"

func scanProject(scanner interface{ Scan(dest ...any) error }) (*Project, error) {
	var (
		id         int64
		path       string
		experience string
		statusStr  string
		pausedFrom sql.NullString
		params     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &path, &experience, &statusStr, &pausedFrom, &params, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	project := &Project{
		ID:          id,
		ProjectPath: path,
		Experience:  experience,
		Status:      ProjectStatus(statusStr),
		PausedFrom:  ProjectStatus(pausedFrom.String),
		ParamsJSON:  params.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		project.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		project.UpdatedAt = updated
	}
	return project, nil
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id          int64
		projectID   int64
		group       string
		name        string
		statusStr   string
		claimedFrom sql.NullString
		claimedRaw  sql.NullString
		filesJSON   string
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&id, &projectID, &group, &name, &statusStr, &claimedFrom, &claimedRaw, &filesJSON, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:        id,
		ProjectID: projectID,
		Group:     ItemGroup(group),
		Name:      name,
		Status:    BatchStatus(statusStr),
	}
	if filesJSON != "" {
		if err := json.Unmarshal([]byte(filesJSON), &batch.Files); err != nil {
			return nil, fmt.Errorf("decode batch files: %w", err)
		}
	}
	if claimedRaw.Valid {
		if claimed, err := parseTimeString(claimedRaw.String); err == nil {
			batch.ClaimedAt = &claimed
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		batch.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		batch.UpdatedAt = updated
	}
	return batch, nil
}

func scanTracking(scanner interface{ Scan(dest ...any) error }) (*TrackingEntry, error) {
	var (
		id          int64
		projectID   int64
		filePath    string
		previewStr  string
		resource    sql.NullString
		producedRaw string
		updatedRaw  string
	)
	if err := scanner.Scan(&id, &projectID, &filePath, &previewStr, &resource, &producedRaw, &updatedRaw); err != nil {
		return nil, err
	}

	entry := &TrackingEntry{
		ID:            id,
		ProjectID:     projectID,
		FilePath:      filePath,
		PreviewStatus: PreviewStatus(previewStr),
		ResourcePath:  resource.String,
	}
	if produced, err := parseTimeString(producedRaw); err == nil {
		entry.ProducedAt = produced
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

func encodeFiles(files []WorkItem) (string, error) {
	if files == nil {
		files = []WorkItem{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode batch files: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
