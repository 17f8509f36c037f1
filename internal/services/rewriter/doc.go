// Package rewriter provides the client for the document transformation
// service that rewrites processing-group content before promotion.
package rewriter
