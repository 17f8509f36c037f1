package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEndpoints()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeEndpoints() {
	c.Source.BaseURL = trimURL(c.Source.BaseURL)
	c.Source.Token = fromEnvOr(c.Source.Token, "PORTER_SOURCE_TOKEN")
	c.Target.BaseURL = trimURL(c.Target.BaseURL)
	c.Target.Token = fromEnvOr(c.Target.Token, "PORTER_TARGET_TOKEN")
	c.CMS.BaseURL = trimURL(c.CMS.BaseURL)
	c.CMS.Token = fromEnvOr(c.CMS.Token, "PORTER_CMS_TOKEN")
	c.CMS.Org = strings.TrimSpace(c.CMS.Org)
	c.CMS.Site = strings.TrimSpace(c.CMS.Site)
	c.Rewriter.BaseURL = trimURL(c.Rewriter.BaseURL)
	c.Rewriter.Token = fromEnvOr(c.Rewriter.Token, "PORTER_REWRITER_TOKEN")
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = defaultChunkSize
	}
	if c.Pipeline.TickInterval <= 0 {
		c.Pipeline.TickInterval = defaultTickInterval
	}
	if c.Pipeline.ErrorRetryInterval <= 0 {
		c.Pipeline.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Pipeline.DispatchWorkers <= 0 {
		c.Pipeline.DispatchWorkers = defaultDispatchWorkers
	}
	if c.CMS.PollInterval <= 0 {
		c.CMS.PollInterval = defaultPollInterval
	}
	if c.CMS.MaxPollAttempts <= 0 {
		c.CMS.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.CMS.MaxSubmitRetries < 0 {
		c.CMS.MaxSubmitRetries = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func fromEnvOr(value, envKey string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv(envKey))
}
