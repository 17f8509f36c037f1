// Package content provides the HTTP client for path-addressed content
// stores. The same client type serves both the source store (manifests and
// document bytes) and the promotion target (uploads); each instance owns
// its rate limiter and retry budget.
package content
