// Package copying implements the verbatim-copy stage for non-processing
// items. A destination held by another writer is a soft failure: the item
// is skipped and the batch continues.
package copying
