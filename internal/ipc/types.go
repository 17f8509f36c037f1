package ipc

import (
	"encoding/json"

	"porter/internal/api"
)

// StartRequest triggers daemon pipeline startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon pipeline processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/pipeline status information.
type StatusResponse struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	Projects     api.ProjectCounts `json:"projects"`
	StageHealth  []api.StageHealth `json:"stage_health"`
	RecordDBPath string            `json:"record_db_path"`
	LockPath     string            `json:"lock_path"`
}

// ProjectCreateRequest submits a raw manifest document.
type ProjectCreateRequest struct {
	Manifest json.RawMessage `json:"manifest"`
}

// ProjectCreateResponse reports the registered project and its batches.
type ProjectCreateResponse struct {
	Project            api.Project `json:"project"`
	ProcessingBatches  int         `json:"processing_batches"`
	NonProcessingCount int         `json:"non_processing_batches"`
}

// ProjectListRequest filters project listing by status.
type ProjectListRequest struct {
	Statuses []string `json:"statuses"`
}

// ProjectListResponse contains project entries.
type ProjectListResponse struct {
	Projects []api.Project `json:"projects"`
}

// ProjectDescribeRequest fetches a single project by id.
type ProjectDescribeRequest struct {
	ID int64 `json:"id"`
}

// ProjectDescribeResponse contains the full detail view.
type ProjectDescribeResponse struct {
	Project  api.Project         `json:"project"`
	Batches  []api.Batch         `json:"batches"`
	Tracking []api.TrackingEntry `json:"tracking,omitempty"`
	Retries  []api.RetryEntry    `json:"retries,omitempty"`
	Audit    []api.AuditEntry    `json:"audit,omitempty"`
}

// ProjectRetryRequest resumes a paused project.
type ProjectRetryRequest struct {
	ID int64 `json:"id"`
}

// ProjectRetryResponse reports the resume outcome.
type ProjectRetryResponse struct {
	Resumed bool   `json:"resumed"`
	Status  string `json:"status"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
