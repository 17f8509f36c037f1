// Package textutil provides display-text helpers for CLI output:
// humanizing identifiers into titles, rendering lifecycle statuses,
// and truncating long values for narrow columns.
package textutil
