// Package logging builds slog loggers for porter processes and defines the
// structured field vocabulary shared across the pipeline. Console output is
// meant for interactive use; JSON output is meant for files and ingestion.
package logging
