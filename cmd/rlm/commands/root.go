// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the rlm command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
	"github.com/bureau-foundation/rlm/lib/audit"
	"github.com/bureau-foundation/rlm/lib/config"
)

// Environment is the process surface the commands touch. Tests replace
// it to capture output and control the environment.
type Environment struct {
	Stdout io.Writer
	Stderr io.Writer

	// Getenv reads environment variables (API keys).
	Getenv func(string) string

	// HTTPClient carries provider requests. Nil builds one with the
	// configured provider timeout.
	HTTPClient *http.Client
}

// DefaultEnvironment is the real process environment.
func DefaultEnvironment() *Environment {
	return &Environment{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	}
}

// Root returns the rlm command tree.
func Root(environment *Environment) *cli.Command {
	return &cli.Command{
		Name:       "rlm",
		HelpOutput: environment.Stderr,
		Description: "Run budget-guarded reasoning tasks over large documents.\n\n" +
			"A task navigates the document with search and slicing and asks a\n" +
			"language model about small chunks. Every run is bounded by a cost\n" +
			"budget, a per-call token ceiling, and a runtime ceiling; hitting one\n" +
			"returns the partial result gathered so far.",
		Subcommands: []*cli.Command{
			runCommand(environment),
			tasksCommand(environment),
			modelsCommand(environment),
			historyCommand(environment),
			versionCommand(environment),
		},
	}
}

// commonParams are the flags shared by commands that load the
// configuration.
type commonParams struct {
	Config  string `flag:"config" desc:"configuration file (default $RLM_CONFIG)"`
	Debug   bool   `flag:"debug" desc:"log at debug level"`
	LogFile string `flag:"log-file" desc:"also append JSON logs to this file"`
}

// setup loads and validates the configuration and builds the logger.
// The returned close function must be called when the command ends.
func (params *commonParams) setup(environment *Environment) (*config.Config, *slog.Logger, func() error, error) {
	configuration, err := config.Load(params.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	if params.LogFile != "" {
		configuration.Log.File = params.LogFile
	}
	if params.Debug {
		configuration.Log.Level = "debug"
	}
	level, err := configuration.LogLevel()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := cli.NewLogger(cli.LoggerOptions{
		Level:  level,
		Stderr: environment.Stderr,
		File:   configuration.Log.File,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return configuration, logger, closeLog, nil
}

// errAuditDisabled is returned by history commands when the audit
// database is turned off.
var errAuditDisabled = errors.New("run history is disabled (audit.enabled is false)")

// openAudit opens the audit database, creating its directory.
func openAudit(ctx context.Context, configuration *config.Config, logger *slog.Logger) (*audit.Store, error) {
	if !configuration.Audit.Enabled {
		return nil, errAuditDisabled
	}
	compression, err := configuration.Compression()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(configuration.Audit.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return audit.Open(ctx, audit.Config{
		Path:        configuration.Audit.Path,
		Compression: &compression,
		Logger:      logger,
	})
}
