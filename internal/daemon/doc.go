// Package daemon coordinates the long-running Porter process and its
// control surfaces.
//
// It wires configuration, record storage, and the stage scheduler into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon accepts manifests over HTTP, owns project-level maintenance
// (listing, detail views, resuming paused projects), and emits pipeline
// notifications.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
