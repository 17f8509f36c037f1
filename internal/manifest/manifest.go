package manifest

import (
	"encoding/json"
	"path"
	"strings"

	"porter/internal/records"
	"porter/internal/services"
)

// Manifest is the work list submitted when a project is created. It is
// validated synchronously at trigger time, before any record exists.
type Manifest struct {
	ProjectPath string             `json:"projectPath"`
	Experience  string             `json:"experience"`
	Params      map[string]string  `json:"params,omitempty"`
	Items       []records.WorkItem `json:"items"`
}

// Parse decodes, normalizes, and validates a manifest payload.
func Parse(raw []byte) (Manifest, error) {
	var m Manifest
	if len(raw) == 0 {
		return Manifest{}, services.Wrap(services.ErrValidation, "trigger", "parse manifest", "empty request body", nil)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, services.Wrap(services.ErrValidation, "trigger", "parse manifest", "malformed JSON", err)
	}
	m.Normalize()
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Normalize trims whitespace and drops empty items so Validate sees the
// payload the pipeline will actually store.
func (m *Manifest) Normalize() {
	m.ProjectPath = strings.TrimSpace(m.ProjectPath)
	m.Experience = strings.TrimSpace(m.Experience)
	items := m.Items[:0]
	for _, item := range m.Items {
		item.SourcePath = strings.TrimSpace(item.SourcePath)
		item.DestinationPath = strings.TrimSpace(item.DestinationPath)
		item.MDPath = strings.TrimSpace(item.MDPath)
		if item.SourcePath == "" && item.DestinationPath == "" {
			continue
		}
		fragments := item.Fragments[:0]
		for _, fragment := range item.Fragments {
			if fragment = strings.TrimSpace(fragment); fragment != "" {
				fragments = append(fragments, fragment)
			}
		}
		item.Fragments = fragments
		items = append(items, item)
	}
	m.Items = items
}

// Validate reports the first structural problem with the manifest. All
// failures carry services.ErrValidation so the trigger surface can map them
// to a synchronous rejection.
func (m Manifest) Validate() error {
	if m.ProjectPath == "" {
		return validationErr("project path is required")
	}
	if m.Experience == "" {
		return validationErr("experience name is required")
	}
	if len(m.Items) == 0 {
		return validationErr("at least one work item is required")
	}
	seen := make(map[string]struct{}, len(m.Items))
	for _, item := range m.Items {
		if item.SourcePath == "" {
			return validationErr("work item is missing a source path")
		}
		if item.DestinationPath == "" {
			return validationErr("work item " + item.SourcePath + " is missing a destination path")
		}
		if _, dup := seen[item.SourcePath]; dup {
			return validationErr("duplicate source path " + item.SourcePath)
		}
		seen[item.SourcePath] = struct{}{}
	}
	return nil
}

func validationErr(message string) error {
	return services.Wrap(services.ErrValidation, "trigger", "validate manifest", message, nil)
}

// processingExtensions are document formats the rewriter must transform
// before promotion. Everything else is copied to the destination verbatim.
var processingExtensions = map[string]struct{}{
	".docx": {},
	".xlsx": {},
	".md":   {},
}

// NeedsProcessing reports whether an item passes through the rewriter.
// Items with a markdown sidecar always do.
func NeedsProcessing(item records.WorkItem) bool {
	if item.MDPath != "" {
		return true
	}
	ext := strings.ToLower(path.Ext(item.SourcePath))
	_, ok := processingExtensions[ext]
	return ok
}

// Split partitions work items into the processing and non-processing groups.
// Relative order within each group follows the manifest order, so batch
// numbering stays deterministic for the same input.
func Split(items []records.WorkItem) (processing, nonProcessing []records.WorkItem) {
	for _, item := range items {
		if NeedsProcessing(item) {
			processing = append(processing, item)
		} else {
			nonProcessing = append(nonProcessing, item)
		}
	}
	return processing, nonProcessing
}

// FragmentItems expands an item's fragment references into standalone work
// items targeting the same destination directory. Fragments inherit the
// owning item's group by construction (they are always processing content).
func FragmentItems(item records.WorkItem) []records.WorkItem {
	if len(item.Fragments) == 0 {
		return nil
	}
	destDir := path.Dir(item.DestinationPath)
	expanded := make([]records.WorkItem, 0, len(item.Fragments))
	for _, fragment := range item.Fragments {
		expanded = append(expanded, records.WorkItem{
			SourcePath:      fragment,
			DestinationPath: path.Join(destDir, path.Base(fragment)),
		})
	}
	return expanded
}
