package preflight

import (
	"context"
	"strings"

	"porter/internal/config"
)

// CheckServicesFromConfig evaluates the external service endpoints from
// config, skipping the ones left unconfigured. Status UIs use this
// without caring which services are in play.
func CheckServicesFromConfig(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	services := []struct {
		name    string
		baseURL string
		token   string
	}{
		{"Source store", cfg.Source.BaseURL, cfg.Source.Token},
		{"Target store", cfg.Target.BaseURL, cfg.Target.Token},
		{"CMS admin", cfg.CMS.BaseURL, cfg.CMS.Token},
		{"Rewriter", cfg.Rewriter.BaseURL, cfg.Rewriter.Token},
	}

	results := make([]Result, 0, len(services))
	for _, svc := range services {
		if strings.TrimSpace(svc.baseURL) == "" {
			results = append(results, Result{Name: svc.name, Detail: "not configured"})
			continue
		}
		results = append(results, CheckEndpoint(ctx, svc.name, svc.baseURL, svc.token))
	}
	return results
}
