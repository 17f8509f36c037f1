// Package manifest parses and validates the work lists submitted when a
// promotion project is created.
//
// A manifest names the project path, the experience being promoted, and the
// ordered work items to move. Validation runs synchronously at trigger time
// so a malformed request is rejected before any project record exists.
// Split assigns each item to the processing group (rewritten before
// promotion) or the non-processing group (copied verbatim).
package manifest
