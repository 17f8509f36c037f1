// Package transforming implements the rewrite stage. Each processing-group
// item is downloaded from the source store, passed through the rewriter
// service, and staged in the target store for the promoting stage.
package transforming
