// Package config provides configuration loading and validation for dbgview.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	PollInterval           time.Duration `yaml:"poll_interval"`
	OverflowThreshold      int           `yaml:"overflow_threshold"`
	AutoNewLine            bool          `yaml:"auto_newline"`
	Holdback               time.Duration `yaml:"holdback"`
	ProcessMonitorInterval time.Duration `yaml:"process_monitor_interval"`

	// Listen is the HTTP address for viewers and metrics. Empty disables the server.
	Listen     string  `yaml:"listen"`
	ViewerRate float64 `yaml:"viewer_rate"`

	// Record is a file that every dispatched line is appended to.
	Record string `yaml:"record"`
	// Filters is a filter set in .json, .xml or .toml format.
	Filters  string      `yaml:"filters"`
	Storage  StorageKind `yaml:"storage"`
	LogLevel string      `yaml:"log_level"`

	Sources []SourceConfig `yaml:"sources"`
}

// StorageKind selects the in-memory line store.
type StorageKind string

const (
	StorageSnappy StorageKind = "snappy"
	StorageVector StorageKind = "vector"
	StorageNone   StorageKind = "none"
)

// SourceType names a kind of log source.
type SourceType string

const (
	SourceProcess   SourceType = "process"
	SourcePTY       SourceType = "pty"
	SourceUDP       SourceType = "udp"
	SourceFile      SourceType = "file"
	SourceWebSocket SourceType = "websocket"
	SourceStdin     SourceType = "stdin"
)

// SourceConfig describes one log source. Which fields apply depends on Type.
type SourceConfig struct {
	Type        SourceType `yaml:"type"`
	Description string     `yaml:"description,omitempty"`

	// process and pty
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`

	// udp
	Port    int    `yaml:"port,omitempty"`
	Address string `yaml:"address,omitempty"`

	// file
	Path   string `yaml:"path,omitempty"`
	Follow bool   `yaml:"follow,omitempty"`

	// websocket
	URL string `yaml:"url,omitempty"`
}

// UDPAddr returns the address a udp source listens on.
func (s SourceConfig) UDPAddr() string {
	if s.Address != "" {
		return s.Address
	}
	return ":" + strconv.Itoa(s.Port)
}
