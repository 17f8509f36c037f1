// Package discovery implements the first pipeline stage. It verifies each
// work item against the source store, gathers nested fragment references
// from markdown sidecars, and folds the fragments into new processing
// batches so the owning batch's file list stays immutable.
package discovery
