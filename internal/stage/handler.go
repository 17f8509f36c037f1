package stage

import (
	"context"

	"porter/internal/records"
)

// Work is one dispatched unit: a project plus the claimed batch. Project
// scoped stages (verification) run with a nil Batch.
type Work struct {
	Project *records.Project
	Batch   *records.Batch
}

// Handler describes the contract the scheduler needs from each stage worker.
type Handler interface {
	Prepare(context.Context, *Work) error
	Execute(context.Context, *Work) error
	HealthCheck(context.Context) Health
}
