// Package promoting implements the publish stage. Staged artifacts from
// the transforming stage move to their final destination in the target
// store, and each promoted path gains a pending tracking entry that the
// verification stage later resolves.
package promoting
