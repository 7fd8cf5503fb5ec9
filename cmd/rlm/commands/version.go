// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
	"github.com/bureau-foundation/rlm/lib/version"
)

type versionParams struct {
	cli.JSONOutput
}

func versionCommand(environment *Environment) *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if done, err := params.EmitJSON(environment.Stdout, version.Build()); done {
				return err
			}
			_, err := fmt.Fprintf(environment.Stdout, "rlm %s\n", version.Full())
			return err
		},
	}
}
