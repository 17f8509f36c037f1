// Package records persists pipeline state in SQLite: projects, batches,
// tracking entries, the retry ledger, and the audit journal.
//
// The store replaces the flag-based claim convention of flat blob stores with
// atomic conditional updates: a batch claim either wins or loses in a single
// UPDATE, and project advances are guarded by the expected prior status so
// re-applying them is a no-op. Retry ledger and audit rows are append-only;
// derived views (batch status tables, pending tracking) are computed by
// query rather than kept as mutable snapshots.
package records
