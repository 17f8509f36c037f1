package testsupport

import (
	"path/filepath"
	"testing"

	"porter/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Source.BaseURL = "http://source.test"
	cfg.Target.BaseURL = "http://target.test"
	cfg.CMS.BaseURL = "http://cms.test"
	cfg.CMS.Org = "acme"
	cfg.CMS.Site = "main"
	cfg.Rewriter.BaseURL = "http://rewriter.test"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithChunkSize overrides the partitioner chunk size on the test config.
func WithChunkSize(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.ChunkSize = size
	}
}

// WithClaimTimeout overrides the stale-claim timeout in minutes.
func WithClaimTimeout(minutes int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.ClaimTimeoutMinutes = minutes
	}
}
