package stage

import (
	"fmt"
	"strings"

	"porter/internal/services"
)

// Failure records one item that did not complete cleanly.
type Failure struct {
	Path   string
	Reason string
}

// Tally accumulates per-item outcomes for one batch run. Every item lands
// in exactly one bucket: succeeded, soft failed (locked destination), or
// hard failed.
type Tally struct {
	Succeeded    int
	SoftFailures []Failure
	Failures     []Failure
}

// Success counts one cleanly processed item.
func (t *Tally) Success() {
	t.Succeeded++
}

// Record classifies an item error into the soft or hard bucket.
func (t *Tally) Record(path string, err error) {
	failure := Failure{Path: path, Reason: err.Error()}
	if services.IsSoftFailure(err) {
		t.SoftFailures = append(t.SoftFailures, failure)
		return
	}
	t.Failures = append(t.Failures, failure)
}

// Total returns the number of items the tally has seen.
func (t *Tally) Total() int {
	return t.Succeeded + len(t.SoftFailures) + len(t.Failures)
}

// Clean reports whether every item succeeded.
func (t *Tally) Clean() bool {
	return len(t.SoftFailures) == 0 && len(t.Failures) == 0
}

// Summary renders the human-auditable progress row for the batch.
func (t *Tally) Summary(stageName, batchName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s finished %s: %d succeeded", stageName, batchName, t.Succeeded)
	if n := len(t.SoftFailures); n > 0 {
		fmt.Fprintf(&b, ", %d locked", n)
	}
	if n := len(t.Failures); n > 0 {
		fmt.Fprintf(&b, ", %d failed", n)
	}
	if paths := failurePaths(t.SoftFailures, t.Failures); len(paths) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(paths, ", "))
	}
	return b.String()
}

const maxSummaryPaths = 10

func failurePaths(buckets ...[]Failure) []string {
	var paths []string
	total := 0
	for _, bucket := range buckets {
		total += len(bucket)
		for _, failure := range bucket {
			if len(paths) < maxSummaryPaths {
				paths = append(paths, failure.Path)
			}
		}
	}
	if total > maxSummaryPaths {
		paths = append(paths, fmt.Sprintf("and %d more", total-maxSummaryPaths))
	}
	return paths
}
