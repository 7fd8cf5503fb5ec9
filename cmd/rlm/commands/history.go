// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
	"github.com/bureau-foundation/rlm/lib/audit"
	"github.com/bureau-foundation/rlm/lib/gateway"
)

type historyParams struct {
	commonParams
	cli.JSONOutput
	Limit  int    `flag:"limit,n" desc:"number of runs to list" default:"20"`
	Task   string `flag:"task" desc:"only runs of this task"`
	Status string `flag:"status" desc:"only runs with this status (completed, partial, error)"`
}

type historyShowParams struct {
	commonParams
	cli.JSONOutput
	Responses bool `flag:"responses" desc:"print each model response"`
}

type historyPruneParams struct {
	commonParams
	OlderThan time.Duration `flag:"older-than" desc:"delete runs started longer ago than this" default:"720h"`
}

// historyRun is the JSON shape of rlm history show.
type historyRun struct {
	*audit.RunRecord
	Subcalls []gateway.SubcallRecord `json:"subcalls"`
}

func historyCommand(environment *Environment) *cli.Command {
	var params historyParams
	return &cli.Command{
		Name:    "history",
		Summary: "List and inspect recorded runs",
		Description: "List recorded runs, newest first.\n\n" +
			"Every rlm run is recorded in the audit database (audit.path) with\n" +
			"its result and the record of every model call.",
		Usage: "rlm history [show <run-id> | prune] [flags]",
		Examples: []cli.Example{
			{Description: "Show the last partial runs", Command: "rlm history --status partial"},
			{Description: "Inspect one run by ID prefix", Command: "rlm history show 3f2a9c"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("history", &params)
		},
		Subcommands: []*cli.Command{
			historyShowCommand(environment),
			historyPruneCommand(environment),
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments %v", args)
			}
			return withAudit(ctx, environment, &params.commonParams, func(store *audit.Store) error {
				runs, err := store.ListRuns(ctx, audit.RunFilter{Task: params.Task, Status: params.Status, Limit: params.Limit})
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(environment.Stdout, runs); done {
					return err
				}
				return writeRunTable(environment.Stdout, runs)
			})
		},
	}
}

func historyShowCommand(environment *Environment) *cli.Command {
	var params historyShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show one run and its model calls",
		Usage:   "rlm history show [flags] <run-id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one run ID or prefix")
			}
			return withAudit(ctx, environment, &params.commonParams, func(store *audit.Store) error {
				record, err := store.Run(ctx, args[0])
				if err != nil {
					return err
				}
				subcalls, err := store.Subcalls(ctx, record.ID)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(environment.Stdout, historyRun{RunRecord: record, Subcalls: subcalls}); done {
					return err
				}
				return writeRunDetail(environment.Stdout, record, subcalls, params.Responses)
			})
		},
	}
}

func historyPruneCommand(environment *Environment) *cli.Command {
	var params historyPruneParams
	return &cli.Command{
		Name:    "prune",
		Summary: "Delete old runs",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("prune", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if params.OlderThan <= 0 {
				return fmt.Errorf("--older-than must be positive, got %s", params.OlderThan)
			}
			return withAudit(ctx, environment, &params.commonParams, func(store *audit.Store) error {
				removed, err := store.Delete(ctx, time.Now().Add(-params.OlderThan))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(environment.Stdout, "deleted %d runs\n", removed)
				return err
			})
		},
	}
}

// withAudit loads the configuration, opens the audit database, and
// calls fn with it.
func withAudit(ctx context.Context, environment *Environment, params *commonParams, fn func(*audit.Store) error) error {
	configuration, logger, closeLog, err := params.setup(environment)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := openAudit(ctx, configuration, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func writeRunTable(w io.Writer, runs []audit.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no recorded runs")
		return err
	}
	styles := cli.NewStyles(w, cli.DefaultTheme)
	writer := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, styles.Header.Render("RUN")+"\tSTARTED\tTASK\tSTATUS\tCOST\tCALLS\tELAPSED")
	for _, run := range runs {
		status := run.Status
		if run.Limit != "" {
			status += " (" + run.Limit + ")"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t$%.4f\t%d\t%s\n",
			shortID(run.ID),
			run.StartedAt.Local().Format(time.DateTime),
			run.Task,
			status,
			run.TotalCostUSD,
			run.TotalCalls,
			formatSeconds(run.ElapsedSeconds),
		)
	}
	return writer.Flush()
}

func writeRunDetail(w io.Writer, record *audit.RunRecord, subcalls []gateway.SubcallRecord, responses bool) error {
	styles := cli.NewStyles(w, cli.DefaultTheme)

	fmt.Fprintf(w, "%s %s\n", styles.Header.Render("Run"), record.ID)
	fmt.Fprintf(w, "  task:     %s\n", record.Task)
	fmt.Fprintf(w, "  status:   %s\n", styles.Status(record.Status))
	if record.Limit != "" {
		fmt.Fprintf(w, "  limit:    %s\n", record.Limit)
	}
	if record.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", record.Error)
	}
	fmt.Fprintf(w, "  model:    %s\n", record.Model)
	fmt.Fprintf(w, "  started:  %s\n", record.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "  elapsed:  %s\n", formatSeconds(record.ElapsedSeconds))
	fmt.Fprintf(w, "  cost:     $%.4f of $%.2f", record.TotalCostUSD, record.CostBudgetUSD)
	if record.OverageCostUSD > 0 {
		fmt.Fprintf(w, " (overage $%.4f)", record.OverageCostUSD)
	}
	fmt.Fprintf(w, "\n  tokens:   %d in, %d out\n", record.InputTokens, record.OutputTokens)

	if len(subcalls) > 0 {
		fmt.Fprintf(w, "\n%s\n", styles.Header.Render("Model calls"))
		writer := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		fmt.Fprintln(writer, "  #\tOUTCOME\tCHUNK\tTOKENS\tCOST\tDURATION\tPROMPT")
		for _, call := range subcalls {
			fmt.Fprintf(writer, "  %d\t%s\t%d chars\t%d/%d\t$%.4f\t%s\t%s\n",
				call.Sequence,
				call.Outcome,
				call.ChunkLength,
				call.Usage.InputTokens,
				call.Usage.OutputTokens,
				call.CostUSD,
				call.Duration.Round(time.Millisecond),
				truncate(call.Prompt, 60),
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		if responses {
			for _, call := range subcalls {
				fmt.Fprintf(w, "\n%s\n%s\n", styles.Faint.Render(fmt.Sprintf("--- response %d", call.Sequence)), call.Response)
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", styles.Header.Render("Result"))
	return cli.WriteJSON(w, record.Value, false)
}

// truncate shortens text to at most limit runes on one line.
func truncate(text string, limit int) string {
	runes := []rune(text)
	for index, character := range runes {
		if character == '\n' {
			runes = runes[:index]
			break
		}
	}
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
