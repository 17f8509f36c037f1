// Package logs provides bounded-memory log file tailing for the CLI.
//
// It supports "last N lines" reads and follow-mode polling from a byte
// offset, so `porter logs --follow` picks up daemon output without
// re-reading the whole file. Callers supply context cancellation so
// polling shuts down cleanly when the CLI exits.
package logs
