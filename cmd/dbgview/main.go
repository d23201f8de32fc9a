package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dbgview/internal/app"
	"dbgview/internal/config"
	"dbgview/internal/console"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	logLevel   string

	udpAddrs    []string
	files       []string
	follow      bool
	execs       []string
	usePTY      bool
	wsURLs      []string
	fromStdin   bool
	listen      string
	record      string
	filtersPath string
	autoNewLine bool

	consoleOpts console.Options
	colorMode   string

	includes         []string
	excludes         []string
	includeProcesses []string
	excludeProcesses []string
	quitMessage      string
)

var rootCmd = &cobra.Command{
	Use:   "dbgview",
	Short: "dbgview - debug output collector",
	Long: `dbgview collects debug output from processes, pipes, UDP and websocket forwarders
and log files, reassembles it into lines, and shows it merged by time.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture from the configured sources until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig(ctx, cmd)
		if err != nil {
			return err
		}

		a, err := app.New(cfg, appOptions())
		if err != nil {
			return err
		}
		return a.Run(ctx)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay file...",
	Short: "Print recorded or plain text log files and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(ctx, configPath)
		if err != nil {
			return err
		}
		if err := applyCommon(cmd, cfg); err != nil {
			return err
		}
		cfg.Sources = nil
		for _, path := range args {
			sc := app.SourceFromArg(path)
			sc.Follow = follow
			cfg.Sources = append(cfg.Sources, sc)
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if err := setupLogging(cfg.LogLevel); err != nil {
			return err
		}

		a, err := app.New(cfg, appOptions())
		if err != nil {
			return err
		}
		return a.Replay(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "dbgview", version)
	},
}

func loadConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}
	if err := applyCommon(cmd, cfg); err != nil {
		return nil, err
	}
	sources, err := sourcesFromFlags()
	if err != nil {
		return nil, err
	}
	cfg.Sources = append(cfg.Sources, sources...)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(name string) error {
	level, err := config.ParseLogLevel(name)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func appOptions() app.Options {
	opts := app.Options{
		Console:        consoleOpts,
		Include:        includes,
		Exclude:        excludes,
		IncludeProcess: includeProcesses,
		ExcludeProcess: excludeProcesses,
		QuitMessage:    quitMessage,
		Stdout:         os.Stdout,
		Stdin:          os.Stdin,
	}
	switch colorMode {
	case "always":
		opts.Console.Color = true
	case "never":
		opts.Console.Color = false
	default:
		opts.Console.Color = console.IsTerminal(os.Stdout)
	}
	return opts
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level: debug, info, warn or error")

	for _, cmd := range []*cobra.Command{runCmd, replayCmd} {
		f := cmd.Flags()
		f.BoolVar(&follow, "follow", false, "Keep reading files as they grow")
		f.StringVar(&record, "record", "", "Append every shown line to this file")
		f.StringVar(&filtersPath, "filters", "", "Filter set (.json, .xml or .toml)")
		f.BoolVarP(&consoleOpts.Time, "time", "t", false, "Prefix lines with the wall clock time")
		f.BoolVar(&consoleOpts.Elapsed, "elapsed", false, "Prefix lines with seconds since start")
		f.BoolVarP(&consoleOpts.PID, "pid", "p", false, "Prefix lines with the process id")
		f.BoolVarP(&consoleOpts.Process, "process", "n", false, "Prefix lines with the process name")
		f.BoolVarP(&consoleOpts.LineNumbers, "line-numbers", "l", false, "Prefix lines with a line number")
		f.BoolVar(&consoleOpts.Tabs, "tabs", false, "Separate columns with tabs")
		f.BoolVarP(&consoleOpts.Quiet, "quiet", "q", false, "Do not print lines; record and serve only")
		f.StringVar(&colorMode, "color", "auto", "Highlight colours: auto, always or never")
		f.StringArrayVarP(&includes, "include", "i", nil, "Only show messages containing this text (repeatable)")
		f.StringArrayVarP(&excludes, "exclude", "e", nil, "Hide messages containing this text (repeatable)")
		f.StringArrayVar(&includeProcesses, "include-process", nil, "Only show processes whose name contains this text (repeatable)")
		f.StringArrayVar(&excludeProcesses, "exclude-process", nil, "Hide processes whose name contains this text (repeatable)")
		f.StringVar(&quitMessage, "quit-message", "", "Stop when a message contains this text")
	}

	f := runCmd.Flags()
	f.StringArrayVar(&udpAddrs, "udp", nil, "Listen for UDP datagrams on this port or address (repeatable)")
	f.StringArrayVar(&files, "file", nil, "Read this log file (repeatable)")
	f.StringArrayVar(&execs, "exec", nil, "Run this command and capture its output (repeatable)")
	f.BoolVar(&usePTY, "pty", false, "Run --exec commands under a pseudo terminal")
	f.StringArrayVar(&wsURLs, "ws", nil, "Receive forwarded messages from this websocket URL (repeatable)")
	f.BoolVar(&fromStdin, "stdin", false, "Read standard input")
	f.StringVar(&listen, "listen", "", "Serve viewers and metrics on this address")
	f.BoolVar(&autoNewLine, "auto-newline", false, "Treat every message as a complete line")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
