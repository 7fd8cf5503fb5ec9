// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/term"
)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Level slog.Level

	// Stderr receives the console handler. Defaults to os.Stderr.
	Stderr io.Writer

	// File, when set, receives a JSON copy of every record at Level,
	// appended across runs.
	File string
}

// NewLogger creates the process logger. The console handler is
// slog.TextHandler when stderr is a terminal and slog.JSONHandler
// otherwise (CI, scripts, pipes). With a log file, both handlers
// receive every record. The returned close function closes the file.
func NewLogger(options LoggerOptions) (*slog.Logger, func() error, error) {
	stderr := options.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	handlerOptions := &slog.HandlerOptions{Level: options.Level}

	var console slog.Handler
	if isTerminal(stderr) {
		console = slog.NewTextHandler(stderr, handlerOptions)
	} else {
		console = slog.NewJSONHandler(stderr, handlerOptions)
	}
	if options.File == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(options.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(options.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	handler := slogmulti.Fanout(console, slog.NewJSONHandler(file, handlerOptions))
	return slog.New(handler), file.Close, nil
}

// isTerminal reports whether w is a terminal file descriptor.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
