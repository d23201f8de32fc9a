package main

import (
	"fmt"
	"strconv"
	"strings"

	"dbgview/internal/config"

	"github.com/spf13/cobra"
)

// applyCommon copies flags shared by run and replay onto cfg. Only flags set on the
// command line override the file.
func applyCommon(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("record") {
		cfg.Record = record
	}
	if flags.Changed("filters") {
		cfg.Filters = filtersPath
	}
	if flags.Changed("listen") {
		cfg.Listen = listen
	}
	if flags.Changed("auto-newline") {
		cfg.AutoNewLine = autoNewLine
	}
	switch colorMode {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid --color %q (must be auto, always, or never)", colorMode)
	}
	return nil
}

// sourcesFromFlags turns the run command's source flags into source configs.
func sourcesFromFlags() ([]config.SourceConfig, error) {
	var sources []config.SourceConfig
	for _, addr := range udpAddrs {
		sc, err := parseUDP(addr)
		if err != nil {
			return nil, err
		}
		sources = append(sources, sc)
	}
	for _, path := range files {
		sources = append(sources, config.SourceConfig{Type: config.SourceFile, Path: path, Follow: follow})
	}
	for _, line := range execs {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil, fmt.Errorf("--exec: empty command")
		}
		typ := config.SourceProcess
		if usePTY {
			typ = config.SourcePTY
		}
		sources = append(sources, config.SourceConfig{Type: typ, Command: fields[0], Args: fields[1:]})
	}
	for _, url := range wsURLs {
		sources = append(sources, config.SourceConfig{Type: config.SourceWebSocket, URL: url})
	}
	if fromStdin {
		sources = append(sources, config.SourceConfig{Type: config.SourceStdin})
	}
	return sources, nil
}

// parseUDP accepts a bare port or a host:port address.
func parseUDP(value string) (config.SourceConfig, error) {
	if port, err := strconv.Atoi(value); err == nil {
		return config.SourceConfig{Type: config.SourceUDP, Port: port}, nil
	}
	if !strings.Contains(value, ":") {
		return config.SourceConfig{}, fmt.Errorf("--udp: %q is neither a port nor host:port", value)
	}
	return config.SourceConfig{Type: config.SourceUDP, Address: value}, nil
}
