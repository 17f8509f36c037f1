// Package api defines wire-format types and converters for the IPC and
// HTTP API layer. It translates internal pipeline records into
// transport-friendly DTOs so CLI and dashboard consumers never couple to
// internal types.
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers.
// Internal enums (records.ProjectStatus, records.BatchStatus) are exposed
// as lowercase strings. Timestamps use RFC3339 with milliseconds.
package api
