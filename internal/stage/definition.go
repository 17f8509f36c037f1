package stage

import "porter/internal/records"

// Definition binds a pipeline stage to the record states it operates on.
// The scheduler uses it to find eligible projects, claim batches, and run
// the project barrier after a batch finishes.
type Definition struct {
	// Name appears in logs, audit rows, and retry ledger entries.
	Name string
	// ProjectStatus the predecessor status a project must hold for this
	// stage to dispatch.
	ProjectStatus records.ProjectStatus
	// NextProject is the status the project advances to once every batch
	// of Group reaches Done.
	NextProject records.ProjectStatus
	// Group selects which batch table partition this stage drains.
	Group records.ItemGroup
	// Ready is the claimable batch status; Done the stage-terminal one.
	Ready records.BatchStatus
	Done  records.BatchStatus
	// ProjectScoped stages run once per project with no batch claim.
	ProjectScoped bool
}

// Definitions returns the pipeline stages in execution order.
func Definitions() []Definition {
	return []Definition{
		{
			Name:          "discovery",
			ProjectStatus: records.ProjectQueued,
			NextProject:   records.ProjectDiscovered,
			Group:         records.GroupProcessing,
			Ready:         records.BatchInitiated,
			Done:          records.BatchDiscovered,
		},
		{
			Name:          "transforming",
			ProjectStatus: records.ProjectDiscovered,
			NextProject:   records.ProjectTransformed,
			Group:         records.GroupProcessing,
			Ready:         records.BatchDiscovered,
			Done:          records.BatchTransformed,
		},
		{
			Name:          "copying",
			ProjectStatus: records.ProjectTransformed,
			NextProject:   records.ProjectCopied,
			Group:         records.GroupNonProcessing,
			Ready:         records.BatchInitiated,
			Done:          records.BatchCopied,
		},
		{
			Name:          "promoting",
			ProjectStatus: records.ProjectCopied,
			NextProject:   records.ProjectPromoted,
			Group:         records.GroupProcessing,
			Ready:         records.BatchTransformed,
			Done:          records.BatchPromoted,
		},
		{
			Name:          "verification",
			ProjectStatus: records.ProjectPromoted,
			NextProject:   records.ProjectCompleted,
			ProjectScoped: true,
		},
	}
}
