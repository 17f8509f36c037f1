// Package scheduler drives the promotion pipeline. A manager runs one
// ticker per stage; each tick finds projects in the stage's predecessor
// status, enforces the one-batch-in-flight rule per project, claims the
// oldest ready batch with a conditional update, and hands the work to a
// stage handler on a tracked goroutine. Batches stuck in progress past
// the claim timeout are returned to their pre-claim status by a
// background reclaimer.
package scheduler
