// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
	"github.com/bureau-foundation/rlm/lib/tasks"
)

type tasksParams struct {
	cli.JSONOutput
}

type taskEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     bool   `json:"default,omitempty"`
}

func tasksCommand(environment *Environment) *cli.Command {
	var params tasksParams
	return &cli.Command{
		Name:    "tasks",
		Summary: "List the built-in tasks",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("tasks", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			var entries []taskEntry
			for _, definition := range tasks.All() {
				entries = append(entries, taskEntry{
					Name:        definition.Name,
					Description: definition.Description,
					Default:     definition.Name == tasks.DefaultTask,
				})
			}
			if done, err := params.EmitJSON(environment.Stdout, entries); done {
				return err
			}

			writer := tabwriter.NewWriter(environment.Stdout, 2, 0, 3, ' ', 0)
			for _, entry := range entries {
				marker := ""
				if entry.Default {
					marker = " (default)"
				}
				fmt.Fprintf(writer, "%s\t%s%s\n", entry.Name, entry.Description, marker)
			}
			return writer.Flush()
		},
	}
}
