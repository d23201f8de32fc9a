package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dbgview/internal/config"
	"dbgview/internal/logline"
	"dbgview/internal/source"
)

// BuildSource creates the log source described by sc. stdin backs the stdin source.
func BuildSource(timer *logline.Timer, sc config.SourceConfig, stdin io.Reader) (source.LogSource, error) {
	var (
		src interface {
			source.LogSource
			SetDescription(string)
		}
		err error
	)

	switch sc.Type {
	case config.SourceProcess, config.SourcePTY:
		src, err = source.NewProcessReader(timer, sc.Command, source.ProcessOptions{
			Args: sc.Args,
			Dir:  sc.Dir,
			PTY:  sc.Type == config.SourcePTY,
		})
	case config.SourceUDP:
		src, err = source.NewUDPReader(timer, sc.UDPAddr())
	case config.SourceFile:
		src, err = source.NewFileReader(timer, sc.Path, sc.Follow)
	case config.SourceWebSocket:
		src, err = source.NewWebSocketReader(timer, sc.URL)
	case config.SourceStdin:
		if stdin == nil {
			stdin = os.Stdin
		}
		src = source.NewPipeReader(timer, stdin, 0, "stdin")
	default:
		return nil, fmt.Errorf("failed to create source: unknown type %q", sc.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s source: %w", sc.Type, err)
	}

	if sc.Description != "" {
		src.SetDescription(sc.Description)
	}
	return src, nil
}

// SourceFromArg turns a replay argument into a file source config.
func SourceFromArg(path string) config.SourceConfig {
	return config.SourceConfig{Type: config.SourceFile, Path: filepath.Clean(path)}
}
