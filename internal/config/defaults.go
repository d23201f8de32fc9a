package config

import (
	"os"
	"time"
)

// Default values for configuration.
const (
	DefaultPollInterval           = 100 * time.Millisecond
	DefaultOverflowThreshold      = 8192
	DefaultProcessMonitorInterval = time.Second
	DefaultViewerRate             = 10
	DefaultLogLevel               = "info"
)

// Environment variable names.
const (
	EnvListen   = "DBGVIEW_LISTEN"
	EnvLogLevel = "DBGVIEW_LOG_LEVEL"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:           DefaultPollInterval,
		OverflowThreshold:      DefaultOverflowThreshold,
		ProcessMonitorInterval: DefaultProcessMonitorInterval,
		ViewerRate:             DefaultViewerRate,
		Storage:                StorageSnappy,
		LogLevel:               DefaultLogLevel,
		Sources:                []SourceConfig{},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() {
	if listen := os.Getenv(EnvListen); listen != "" {
		c.Listen = listen
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
}
