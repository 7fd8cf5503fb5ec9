// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command rlm runs budget-guarded reasoning tasks over large documents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/rlm/cmd/rlm/commands"
	"github.com/bureau-foundation/rlm/lib/process"
)

func main() {
	if err := run(); err != nil {
		// rlm run prints its own result envelope and returns an
		// ExitError carrying the status code; don't add an "error:" line.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root(commands.DefaultEnvironment()).Execute(ctx, os.Args[1:])
}
