// Package config loads, normalizes, and validates porter's TOML
// configuration. Configuration errors are surfaced synchronously at load
// time; nothing downstream re-validates.
package config
