// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
	"github.com/bureau-foundation/rlm/lib/config"
	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/guard"
	"github.com/bureau-foundation/rlm/lib/llm"
	"github.com/bureau-foundation/rlm/lib/pricing"
	"github.com/bureau-foundation/rlm/lib/script"
	"github.com/bureau-foundation/rlm/lib/task"
	"github.com/bureau-foundation/rlm/lib/tasks"
)

// Exit codes of rlm run.
const (
	exitPartial = 2
	exitError   = 1
)

type runParams struct {
	commonParams

	Task     string  `flag:"task,t" desc:"built-in task to run (see rlm tasks)" default:"analyze_document"`
	Script   string  `flag:"script,s" desc:"Starlark file defining task(context); replaces --task"`
	Cost     float64 `flag:"cost" desc:"cost budget in USD (config default 0.50)"`
	Timeout  string  `flag:"timeout" desc:"runtime ceiling, seconds or a duration like 90s (config default 60s)"`
	Tokens   int     `flag:"tokens" desc:"estimated input token ceiling per model call (config default 4000)"`
	Model    string  `flag:"model,m" desc:"model to call; prices come from the catalog (config default gpt-4o-mini)"`
	MaxSteps uint64  `flag:"max-steps" desc:"Starlark execution step ceiling for --script"`
	Compact  bool    `flag:"compact" desc:"print the result as single-line JSON"`
	Quiet    bool    `flag:"quiet,q" desc:"do not print the run summary to stderr"`
	NoAudit  bool    `flag:"no-audit" desc:"do not record the run in the history database"`
}

func runCommand(environment *Environment) *cli.Command {
	var params runParams
	var flagSet *pflag.FlagSet
	return &cli.Command{
		Name:    "run",
		Summary: "Run a task against a context file",
		Description: "Run a task against a context file under a budget.\n\n" +
			"The result envelope is printed to stdout as JSON. The exit code is 0\n" +
			"when the task completed, 2 when a budget limit stopped it with a\n" +
			"partial result, and 1 on error.",
		Usage: "rlm run [flags] <context-file>",
		Examples: []cli.Example{
			{Description: "Analyze a document with the default budget", Command: "rlm run report.txt"},
			{Description: "Classify log errors with a tighter budget", Command: "rlm run app.log --task find_errors_in_log --cost 0.25 --timeout 30"},
			{Description: "Run a Starlark task", Command: "rlm run notes.md --script summarize.star"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = cli.FlagsFromParams("run", &params)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one context file, got %d arguments", len(args))
			}
			return runTask(ctx, environment, &params, flagSet, args[0])
		},
	}
}

func runTask(ctx context.Context, environment *Environment, params *runParams, flagSet *pflag.FlagSet, contextPath string) error {
	configuration, logger, closeLog, err := params.setup(environment)
	if err != nil {
		return err
	}
	defer closeLog()

	budget, err := runBudget(configuration, params, flagSet)
	if err != nil {
		return err
	}

	text, err := readContext(contextPath)
	if err != nil {
		return err
	}

	name, fn, err := resolveTask(configuration, params, flagSet, logger)
	if err != nil {
		return err
	}

	model, err := newModel(configuration, budget.Model, environment)
	if err != nil {
		return err
	}

	runnerConfig := task.Config{Model: model, Logger: logger}
	if !params.NoAudit && configuration.Audit.Enabled {
		store, err := openAudit(ctx, configuration, logger)
		if err != nil {
			logger.Warn("run history unavailable, continuing without it", "error", err)
		} else {
			defer store.Close()
			runnerConfig.Recorder = store
		}
	}
	runner, err := task.NewRunner(runnerConfig)
	if err != nil {
		return err
	}

	logger.Debug("run configured",
		"task", name,
		"context_file", contextPath,
		"context_chars", len([]rune(text)),
		"cost_budget_usd", budget.MaxCost,
		"max_runtime", budget.MaxRuntime,
		"model", budget.Model,
	)

	result := runner.Run(ctx, name, fn, text, budget)

	if err := cli.WriteJSON(environment.Stdout, result, params.Compact); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	if !params.Quiet {
		writeRunSummary(environment.Stderr, result)
	}

	switch result.Status {
	case task.StatusCompleted:
		return nil
	case task.StatusPartial:
		return &cli.ExitError{Code: exitPartial}
	default:
		return &cli.ExitError{Code: exitError}
	}
}

// runBudget applies the flags the user set over the configured guard
// section. Choosing a model on the command line drops a configured
// price override, which belonged to the configured model.
func runBudget(configuration *config.Config, params *runParams, flagSet *pflag.FlagSet) (guard.Config, error) {
	budget, err := configuration.GuardConfig()
	if err != nil {
		return guard.Config{}, err
	}
	if flagSet.Changed("cost") {
		budget.MaxCost = params.Cost
	}
	if flagSet.Changed("timeout") {
		runtime, err := parseTimeout(params.Timeout)
		if err != nil {
			return guard.Config{}, err
		}
		budget.MaxRuntime = runtime
	}
	if flagSet.Changed("tokens") {
		budget.MaxTokensPerSubcall = params.Tokens
	}
	if flagSet.Changed("model") && params.Model != budget.Model {
		budget.Model = params.Model
		budget.Price = pricing.Price{}
	}
	if err := budget.Validate(); err != nil {
		return guard.Config{}, err
	}
	return budget, nil
}

// parseTimeout accepts plain seconds ("30", "2.5") or a Go duration.
func parseTimeout(text string) (time.Duration, error) {
	if seconds, err := strconv.ParseFloat(text, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	duration, err := time.ParseDuration(text)
	if err != nil {
		return 0, fmt.Errorf("invalid --timeout %q: want seconds or a duration like 90s", text)
	}
	return duration, nil
}

// readContext reads the context document. Missing, unreadable, and
// blank files are errors.
func readContext(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("context file not found: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("reading context file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("context file is empty: %s", path)
	}
	return string(data), nil
}

func resolveTask(configuration *config.Config, params *runParams, flagSet *pflag.FlagSet, logger *slog.Logger) (string, task.Func, error) {
	if params.Script == "" {
		definition, err := tasks.Lookup(params.Task)
		if err != nil {
			return "", nil, err
		}
		return definition.Name, definition.Func, nil
	}
	if flagSet.Changed("task") {
		return "", nil, errors.New("--task and --script are mutually exclusive")
	}
	steps := configuration.Script.MaxSteps
	if flagSet.Changed("max-steps") {
		steps = params.MaxSteps
	}
	compiled, err := script.LoadFile(params.Script, script.WithMaxSteps(steps), script.WithLogger(logger))
	if err != nil {
		return "", nil, err
	}
	return compiled.Name(), compiled.Run, nil
}

// newModel builds the provider-backed model for modelName.
func newModel(configuration *config.Config, modelName string, environment *Environment) (gateway.Model, error) {
	providerName, err := configuration.ProviderName(modelName)
	if err != nil {
		return nil, err
	}
	keyVariable := configuration.APIKeyEnv(providerName)
	apiKey := environment.Getenv(keyVariable)
	if apiKey == "" && configuration.Provider.BaseURL == "" {
		return nil, fmt.Errorf("%s is not set; export it or set provider.base_url for a keyless gateway", keyVariable)
	}

	httpClient := environment.HTTPClient
	if httpClient == nil {
		timeout, err := configuration.ProviderTimeout()
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	endpoint := llm.Endpoint{BaseURL: configuration.Provider.BaseURL, APIKey: apiKey}

	var provider llm.Provider
	switch providerName {
	case config.ProviderOpenAI:
		provider = llm.NewOpenAI(httpClient, endpoint)
	case config.ProviderAnthropic:
		provider = llm.NewAnthropic(httpClient, endpoint)
	default:
		return nil, fmt.Errorf("unsupported provider %q", providerName)
	}
	return &gateway.ProviderModel{
		Provider:        provider,
		Model:           modelName,
		SystemPrompt:    configuration.Provider.SystemPrompt,
		MaxOutputTokens: configuration.Provider.MaxOutputTokens,
	}, nil
}
