package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNoSources is returned by Validate when no log source is configured.
var ErrNoSources = errors.New("sources: at least one log source is required")

// Load reads a configuration file and applies environment overrides. An empty path
// yields the defaults. Sources may still be added from the command line, so Load
// does not require any; call Validate once the configuration is complete.
func Load(_ context.Context, path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := validateSettings(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks a complete configuration.
func Validate(cfg *Config) error {
	if err := validateSettings(cfg); err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return ErrNoSources
	}

	stdin := 0
	for i, src := range cfg.Sources {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("sources[%d] (%s): %w", i, src.Type, err)
		}
		if src.Type == SourceStdin {
			stdin++
		}
	}
	if stdin > 1 {
		return errors.New("sources: stdin can only be read once")
	}
	return nil
}

// ParseLogLevel converts a level name such as "debug" or "WARN" to a slog.Level.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func validateSettings(cfg *Config) error {
	if cfg.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if cfg.OverflowThreshold < 0 {
		return errors.New("overflow_threshold must not be negative")
	}
	if cfg.Holdback < 0 {
		return errors.New("holdback must not be negative")
	}
	if cfg.ProcessMonitorInterval <= 0 {
		return errors.New("process_monitor_interval must be positive")
	}
	if cfg.ViewerRate < 0 {
		return errors.New("viewer_rate must not be negative")
	}

	switch cfg.Storage {
	case StorageSnappy, StorageVector, StorageNone:
	case "":
		cfg.Storage = StorageSnappy
	default:
		return fmt.Errorf("storage: invalid kind %q (must be snappy, vector, or none)", cfg.Storage)
	}

	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

func validateSource(src SourceConfig) error {
	switch src.Type {
	case SourceProcess, SourcePTY:
		if src.Command == "" {
			return errors.New("command is required")
		}
	case SourceUDP:
		if src.Address == "" && (src.Port <= 0 || src.Port > 65535) {
			return fmt.Errorf("port %d out of range (or set address)", src.Port)
		}
	case SourceFile:
		if src.Path == "" {
			return errors.New("path is required")
		}
	case SourceWebSocket:
		if src.URL == "" {
			return errors.New("url is required")
		}
	case SourceStdin:
	default:
		return fmt.Errorf("invalid type %q (must be process, pty, udp, file, websocket, or stdin)", src.Type)
	}
	return nil
}
