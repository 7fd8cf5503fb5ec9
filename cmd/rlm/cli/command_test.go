// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	t.Parallel()

	var called string
	var receivedArgs []string
	root := &Command{
		Name: "rlm",
		Subcommands: []*Command{
			{Name: "tasks", Run: func(ctx context.Context, args []string) error { called = "tasks"; return nil }},
			{
				Name: "history",
				Subcommands: []*Command{{
					Name: "show",
					Run: func(ctx context.Context, args []string) error {
						called = "history show"
						receivedArgs = args
						return nil
					},
				}},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"history", "show", "abc123"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "history show" {
		t.Errorf("dispatched to %q, want history show", called)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "abc123" {
		t.Errorf("args = %v, want [abc123]", receivedArgs)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	t.Parallel()

	var params struct {
		Cost    float64 `flag:"cost" desc:"budget" default:"0.5"`
		Compact bool    `flag:"compact,c" desc:"compact output"`
	}
	var receivedArgs []string
	command := &Command{
		Name:  "run",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("run", &params) },
		Run: func(ctx context.Context, args []string) error {
			receivedArgs = args
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--cost", "1.5", "-c", "doc.txt"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if params.Cost != 1.5 || !params.Compact {
		t.Errorf("params = %+v, want cost 1.5 and compact", params)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "doc.txt" {
		t.Errorf("args = %v, want [doc.txt]", receivedArgs)
	}
}

func TestExecuteErrors(t *testing.T) {
	t.Parallel()

	newRoot := func() *Command {
		var params struct {
			Timeout string `flag:"timeout" desc:"ceiling"`
		}
		return &Command{
			Name:       "rlm",
			HelpOutput: &bytes.Buffer{},
			Subcommands: []*Command{
				{
					Name:  "run",
					Flags: func() *pflag.FlagSet { return FlagsFromParams("run", &params) },
					Run:   func(ctx context.Context, args []string) error { return nil },
				},
				{Name: "models", Run: func(ctx context.Context, args []string) error { return nil }},
			},
		}
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "command typo", args: []string{"rnu"}, want: `did you mean "run"`},
		{name: "unknown command", args: []string{"deploy-everything"}, want: `unknown command "deploy-everything"`},
		{name: "flag typo", args: []string{"run", "--timout", "5s"}, want: "did you mean --timeout"},
		{name: "no subcommand", args: nil, want: "subcommand required"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			err := newRoot().Execute(context.Background(), test.args)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Execute(%v) error = %v, want it to contain %q", test.args, err, test.want)
			}
		})
	}
}

func TestHelpOutput(t *testing.T) {
	t.Parallel()

	var params struct {
		Task string `flag:"task" desc:"built-in task name" default:"analyze_document"`
	}
	var help bytes.Buffer
	root := &Command{
		Name:       "rlm",
		HelpOutput: &help,
		Subcommands: []*Command{{
			Name:        "run",
			Summary:     "Run a task",
			Description: "Run a task against a context file.",
			Usage:       "rlm run [flags] <context-file>",
			Flags:       func() *pflag.FlagSet { return FlagsFromParams("run", &params) },
			Examples:    []Example{{Description: "Analyze a report", Command: "rlm run report.txt"}},
			Run:         func(ctx context.Context, args []string) error { return nil },
		}},
	}

	if err := root.Execute(context.Background(), []string{"run", "--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{
		"Run a task against a context file.",
		"rlm run [flags] <context-file>",
		"--task",
		"analyze_document",
		"# Analyze a report",
	} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, help.String())
		}
	}
}
