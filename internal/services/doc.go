// Package services defines the shared error taxonomy, context annotations,
// and rate limiting used by porter's collaborator clients. Concrete clients
// live in subpackages (content, cms, rewriter).
package services
