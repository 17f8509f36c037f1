// Package stage defines the contract between the scheduler and the
// pipeline stage workers.
//
// Handler is the worker interface (Prepare, Execute, HealthCheck) over a
// dispatched Work unit. Definition binds each stage to the project and
// batch statuses it reads and writes; Definitions lists the pipeline in
// execution order. RunItems and Complete implement the shared worker
// mechanics: per-item outcome classification that never aborts a batch,
// the audit row, and the last-one-out project advance.
package stage
