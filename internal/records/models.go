package records

import (
	"strings"
	"time"
)

// ProjectStatus represents the lifecycle of a promotion project.
type ProjectStatus string

const (
	ProjectQueued      ProjectStatus = "queued"
	ProjectDiscovered  ProjectStatus = "discovered"
	ProjectTransformed ProjectStatus = "transformed"
	ProjectCopied      ProjectStatus = "copied"
	ProjectPromoted    ProjectStatus = "promoted"
	ProjectVerifying   ProjectStatus = "verifying"
	ProjectCompleted   ProjectStatus = "completed"
	ProjectFailed      ProjectStatus = "failed"
	ProjectPaused      ProjectStatus = "paused"
)

var projectSequence = []ProjectStatus{
	ProjectQueued,
	ProjectDiscovered,
	ProjectTransformed,
	ProjectCopied,
	ProjectPromoted,
	ProjectVerifying,
	ProjectCompleted,
}

var projectStatusSet = func() map[ProjectStatus]struct{} {
	set := make(map[ProjectStatus]struct{}, len(projectSequence)+2)
	for _, status := range projectSequence {
		set[status] = struct{}{}
	}
	set[ProjectFailed] = struct{}{}
	set[ProjectPaused] = struct{}{}
	return set
}()

// ProjectSequence returns the ordered forward path through the pipeline.
func ProjectSequence() []ProjectStatus {
	cp := make([]ProjectStatus, len(projectSequence))
	copy(cp, projectSequence)
	return cp
}

// ParseProjectStatus converts a string into a known ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, bool) {
	normalized := ProjectStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := projectStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further automatic transition occurs.
func (s ProjectStatus) IsTerminal() bool {
	switch s {
	case ProjectCompleted, ProjectFailed, ProjectPaused:
		return true
	default:
		return false
	}
}

// BatchStatus represents the lifecycle of a batch within its item group.
type BatchStatus string

const (
	BatchInitiated   BatchStatus = "initiated"
	BatchInProgress  BatchStatus = "in_progress"
	BatchDiscovered  BatchStatus = "discovered"
	BatchTransformed BatchStatus = "transformed"
	BatchCopied      BatchStatus = "copied"
	BatchPromoted    BatchStatus = "promoted"
	BatchError       BatchStatus = "error"
)

// ItemGroup partitions a project's work items by how they are promoted.
type ItemGroup string

const (
	// GroupProcessing items pass through the rewriter before promotion.
	GroupProcessing ItemGroup = "processing"
	// GroupNonProcessing items are copied to the destination verbatim.
	GroupNonProcessing ItemGroup = "non_processing"
)

// Prefix returns the deterministic batch-name prefix for the group. The
// prefixes are disjoint so the two partitioner passes never collide.
func (g ItemGroup) Prefix() string {
	if g == GroupNonProcessing {
		return "copy_batch_"
	}
	return "batch_"
}

// PreviewStatus tracks verification of a promoted path.
type PreviewStatus string

const (
	PreviewPending   PreviewStatus = "pending"
	PreviewCompleted PreviewStatus = "completed"
	PreviewFailed    PreviewStatus = "failed"
)

// WorkItem is one unit of content to promote. Items are immutable once
// assigned to a batch; fragments discovered later are folded into new
// batches, never appended here.
type WorkItem struct {
	SourcePath      string   `json:"sourcePath"`
	DestinationPath string   `json:"destinationPath"`
	MDPath          string   `json:"mdPath,omitempty"`
	Fragments       []string `json:"fragments,omitempty"`
}

// Project represents one end-to-end promotion run.
type Project struct {
	ID          int64
	ProjectPath string
	Experience  string
	Status      ProjectStatus
	PausedFrom  ProjectStatus
	ParamsJSON  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Batch is a fixed-size partition of work items processed together by one
// worker invocation.
type Batch struct {
	ID        int64
	ProjectID int64
	Group     ItemGroup
	Name      string
	Status    BatchStatus
	Files     []WorkItem
	ClaimedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchSeed is the insert form of a batch produced by the partitioner.
type BatchSeed struct {
	Name  string
	Files []WorkItem
}

// TrackingEntry records a promoted path awaiting verification.
type TrackingEntry struct {
	ID            int64
	ProjectID     int64
	FilePath      string
	PreviewStatus PreviewStatus
	ResourcePath  string
	ProducedAt    time.Time
	UpdatedAt     time.Time
}

// RetryEntry is one append-only retry ledger row.
type RetryEntry struct {
	ID           int64
	ProjectID    int64
	Stage        string
	Path         string
	ErrorMessage string
	Attempt      int
	CreatedAt    time.Time
}

// AuditEntry is one human-auditable progress row.
type AuditEntry struct {
	ID         int64
	ProjectID  int64
	Stage      string
	Level      string
	Message    string
	Succeeded  int
	SoftFailed int
	Failed     int
	CreatedAt  time.Time
}

// StatusCounts summarizes projects grouped by lifecycle state.
type StatusCounts struct {
	Total     int
	Active    int
	Completed int
	Failed    int
	Paused    int
}
