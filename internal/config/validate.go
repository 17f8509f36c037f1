package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.validateCMS(); err != nil {
		return err
	}
	if err := c.validateRewriter(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/porter/config.toml"
		}
		return fmt.Errorf("source.base_url is required. Edit %s (create with 'porter config init')", defaultPath)
	}
	if c.Source.MaxRetries < 0 {
		return errors.New("source.max_retries must not be negative")
	}
	return nil
}

func (c *Config) validateTarget() error {
	if c.Target.BaseURL == "" {
		return errors.New("target.base_url is required")
	}
	return nil
}

func (c *Config) validateCMS() error {
	if c.CMS.BaseURL == "" {
		return errors.New("cms.base_url is required")
	}
	if c.CMS.Org == "" || c.CMS.Site == "" {
		return errors.New("cms.org and cms.site must be set")
	}
	if c.CMS.PollInterval <= 0 {
		return errors.New("cms.poll_interval must be positive")
	}
	if c.CMS.MaxPollAttempts <= 0 {
		return errors.New("cms.max_poll_attempts must be positive")
	}
	return nil
}

func (c *Config) validateRewriter() error {
	if c.Rewriter.BaseURL == "" {
		return errors.New("rewriter.base_url is required")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ChunkSize <= 0 {
		return errors.New("pipeline.chunk_size must be positive")
	}
	if c.Pipeline.TickInterval <= 0 {
		return errors.New("pipeline.tick_interval must be positive")
	}
	if c.Pipeline.ClaimTimeoutMinutes < 0 {
		return errors.New("pipeline.claim_timeout_minutes must not be negative (0 disables reclaim)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
