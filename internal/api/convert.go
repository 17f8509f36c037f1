package api

import (
	"encoding/json"
	"time"

	"porter/internal/records"
	"porter/internal/stage"
)

// FromProject converts a record into its transport representation.
func FromProject(project *records.Project) Project {
	if project == nil {
		return Project{}
	}
	out := Project{
		ID:          project.ID,
		ProjectPath: project.ProjectPath,
		Experience:  project.Experience,
		Status:      string(project.Status),
		CreatedAt:   formatTime(project.CreatedAt),
		UpdatedAt:   formatTime(project.UpdatedAt),
	}
	if project.Status == records.ProjectPaused {
		out.PausedFrom = string(project.PausedFrom)
	}
	if project.ParamsJSON != "" {
		var params map[string]string
		if err := json.Unmarshal([]byte(project.ParamsJSON), &params); err == nil && len(params) > 0 {
			out.Params = params
		}
	}
	return out
}

// FromProjects converts a record slice, skipping nil entries.
func FromProjects(projects []*records.Project) []Project {
	out := make([]Project, 0, len(projects))
	for _, project := range projects {
		if project == nil {
			continue
		}
		out = append(out, FromProject(project))
	}
	return out
}

// FromBatch converts a batch record into its transport representation.
func FromBatch(batch *records.Batch) Batch {
	if batch == nil {
		return Batch{}
	}
	out := Batch{
		ID:     batch.ID,
		Name:   batch.Name,
		Group:  string(batch.Group),
		Status: string(batch.Status),
		Items:  len(batch.Files),
	}
	if batch.ClaimedAt != nil {
		out.ClaimedAt = formatTime(*batch.ClaimedAt)
	}
	return out
}

// FromTracking converts verification tracking rows.
func FromTracking(entries []*records.TrackingEntry) []TrackingEntry {
	out := make([]TrackingEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		out = append(out, TrackingEntry{
			FilePath:      entry.FilePath,
			PreviewStatus: string(entry.PreviewStatus),
			ResourcePath:  entry.ResourcePath,
		})
	}
	return out
}

// FromRetries converts retry ledger rows.
func FromRetries(entries []*records.RetryEntry) []RetryEntry {
	out := make([]RetryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		out = append(out, RetryEntry{
			Stage:        entry.Stage,
			Path:         entry.Path,
			ErrorMessage: entry.ErrorMessage,
			Attempt:      entry.Attempt,
			CreatedAt:    formatTime(entry.CreatedAt),
		})
	}
	return out
}

// FromAudit converts progress journal rows.
func FromAudit(entries []*records.AuditEntry) []AuditEntry {
	out := make([]AuditEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		out = append(out, AuditEntry{
			Stage:      entry.Stage,
			Level:      entry.Level,
			Message:    entry.Message,
			Succeeded:  entry.Succeeded,
			SoftFailed: entry.SoftFailed,
			Failed:     entry.Failed,
			CreatedAt:  formatTime(entry.CreatedAt),
		})
	}
	return out
}

// FromStageHealth converts stage health reports preserving order.
func FromStageHealth(reports []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(reports))
	for _, report := range reports {
		out = append(out, StageHealth{
			Name:   report.Name,
			Ready:  report.Ready,
			Detail: report.Detail,
		})
	}
	return out
}

// FromStatusCounts converts project stats.
func FromStatusCounts(counts records.StatusCounts) ProjectCounts {
	return ProjectCounts{
		Total:     counts.Total,
		Active:    counts.Active,
		Completed: counts.Completed,
		Failed:    counts.Failed,
		Paused:    counts.Paused,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}
