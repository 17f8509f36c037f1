// Package preflight provides readiness checks for external services
// and filesystem paths that Porter depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup. If any check fails, startup
//     aborts instead of claiming batches it cannot finish.
//   - The CLI "porter status" command uses CheckServicesFromConfig to
//     display service health.
//
// Endpoint checks are gated by configuration -- services without a base
// URL are skipped.
package preflight
