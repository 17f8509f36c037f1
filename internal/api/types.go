package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Project describes a promotion project in a transport-friendly format.
type Project struct {
	ID          int64             `json:"id"`
	ProjectPath string            `json:"projectPath"`
	Experience  string            `json:"experience"`
	Status      string            `json:"status"`
	PausedFrom  string            `json:"pausedFrom,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	CreatedAt   string            `json:"createdAt,omitempty"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
}

// Batch describes one partition of a project's work items.
type Batch struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Group     string `json:"group"`
	Status    string `json:"status"`
	Items     int    `json:"items"`
	ClaimedAt string `json:"claimedAt,omitempty"`
}

// TrackingEntry describes a promoted path awaiting or past verification.
type TrackingEntry struct {
	FilePath      string `json:"filePath"`
	PreviewStatus string `json:"previewStatus"`
	ResourcePath  string `json:"resourcePath,omitempty"`
}

// RetryEntry describes one retry ledger row.
type RetryEntry struct {
	Stage        string `json:"stage"`
	Path         string `json:"path"`
	ErrorMessage string `json:"errorMessage"`
	Attempt      int    `json:"attempt"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// AuditEntry describes one progress journal row.
type AuditEntry struct {
	Stage      string `json:"stage"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	Succeeded  int    `json:"succeeded"`
	SoftFailed int    `json:"softFailed"`
	Failed     int    `json:"failed"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// ProjectCounts groups projects into coarse lifecycle buckets.
type ProjectCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Paused    int `json:"paused"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	RecordDBPath string        `json:"recordDbPath"`
	LockFilePath string        `json:"lockFilePath"`
	Projects     ProjectCounts `json:"projects"`
	StageHealth  []StageHealth `json:"stageHealth"`
}

// ProjectListResponse wraps a collection of projects.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

// ProjectDetailResponse wraps a project with its batches and journals.
type ProjectDetailResponse struct {
	Project  Project         `json:"project"`
	Batches  []Batch         `json:"batches"`
	Tracking []TrackingEntry `json:"tracking,omitempty"`
	Retries  []RetryEntry    `json:"retries,omitempty"`
	Audit    []AuditEntry    `json:"audit,omitempty"`
}

// CreateProjectResponse reports the outcome of manifest submission.
type CreateProjectResponse struct {
	Project            Project `json:"project"`
	ProcessingBatches  int     `json:"processingBatches"`
	NonProcessingCount int     `json:"nonProcessingBatches"`
}

// RetryResponse reports whether a paused or failed project was requeued.
type RetryResponse struct {
	Resumed bool   `json:"resumed"`
	Status  string `json:"status"`
}
