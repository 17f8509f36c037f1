// Package verification implements the final pipeline stage. It submits all
// pending tracked destinations to the CMS preview operation through the
// bulk-job poller, retries poller-reported failures exactly once, and
// resolves each tracking entry to completed or failed. The project always
// reaches completed; per-path failures are terminal audit facts, not
// pipeline aborts.
package verification
