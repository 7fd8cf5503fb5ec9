// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
	"github.com/bureau-foundation/rlm/lib/pricing"
)

type modelsParams struct {
	cli.JSONOutput
	Provider string `flag:"provider" desc:"only list models of this provider (openai, anthropic)"`
}

type modelEntry struct {
	ID               string  `json:"id"`
	Provider         string  `json:"provider"`
	ContextWindow    int     `json:"context_window"`
	InputPerMillion  float64 `json:"input_per_million_usd"`
	OutputPerMillion float64 `json:"output_per_million_usd"`
}

func modelsCommand(environment *Environment) *cli.Command {
	var params modelsParams
	return &cli.Command{
		Name:    "models",
		Summary: "List the models in the pricing catalog",
		Description: "List the models in the pricing catalog with their per-million-token prices.\n\n" +
			"Models outside the catalog need guard.input_per_million and\n" +
			"guard.output_per_million in the configuration file.",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("models", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			var entries []modelEntry
			for _, model := range pricing.Models() {
				if params.Provider != "" && model.Provider != params.Provider {
					continue
				}
				entries = append(entries, modelEntry{
					ID:               model.ID,
					Provider:         model.Provider,
					ContextWindow:    model.ContextWindow,
					InputPerMillion:  model.Price.InputPerMillion,
					OutputPerMillion: model.Price.OutputPerMillion,
				})
			}
			if done, err := params.EmitJSON(environment.Stdout, entries); done {
				return err
			}

			writer := tabwriter.NewWriter(environment.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "MODEL\tPROVIDER\tCONTEXT\tINPUT $/M\tOUTPUT $/M")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%d\t%.2f\t%.2f\n",
					entry.ID, entry.Provider, entry.ContextWindow, entry.InputPerMillion, entry.OutputPerMillion)
			}
			return writer.Flush()
		},
	}
}
