// Package bulkjob drives a remote asynchronous bulk operation to completion.
//
// Submit posts a path set, retries the submission within a bounded budget,
// then polls the job-details endpoint on a fixed interval until the job
// reaches a terminal state or the attempt budget runs out. Per-path results
// are merged monotonically across polls: a success, once observed, is never
// lost to a later partial snapshot. Auth failures short-circuit — every path
// is returned failed without entering the poll loop.
package bulkjob
