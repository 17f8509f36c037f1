package preflight

import (
	"context"

	"porter/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeDiskBytes is the floor below which the data directory is
// considered too full to accept new projects.
const minFreeDiskBytes = 256 << 20

// RunAll executes all applicable preflight checks for the given config.
// Endpoint checks only run when the corresponding base URL is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace("Data disk space", cfg.Paths.DataDir, minFreeDiskBytes),
	}

	if cfg.Source.BaseURL != "" {
		results = append(results, CheckEndpoint(ctx, "Source store", cfg.Source.BaseURL, cfg.Source.Token))
	}
	if cfg.Target.BaseURL != "" {
		results = append(results, CheckEndpoint(ctx, "Target store", cfg.Target.BaseURL, cfg.Target.Token))
	}
	if cfg.CMS.BaseURL != "" {
		results = append(results, CheckEndpoint(ctx, "CMS admin", cfg.CMS.BaseURL, cfg.CMS.Token))
	}
	if cfg.Rewriter.BaseURL != "" {
		results = append(results, CheckEndpoint(ctx, "Rewriter", cfg.Rewriter.BaseURL, cfg.Rewriter.Token))
	}

	return results
}

// AllPassed reports whether every check in the slice succeeded.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
