// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package task runs one task function against one context document
// under one budget, and turns whatever happens into a Result.
//
// A run creates a fresh Guard, Gateway, and Navigator, then calls the
// task on its own goroutine while a watchdog polls the runtime ceiling.
// A budget limit, whether raised by a gateway call or by the watchdog,
// ends the run as StatusPartial with the last value the task saved
// through its Session. Any other failure, including a panic, ends it as
// StatusError. The runner never blocks past the runtime ceiling plus
// one poll interval: when the watchdog fires it cancels the task's
// context and reports immediately without waiting for the task to
// return.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rlm/lib/clock"
	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/guard"
	"github.com/bureau-foundation/rlm/lib/navigator"
)

// Func is a task body. It returns its final result, or an error. A
// budget error (see guard.AsLimitError) may be returned as is; when it
// comes with a non-nil value, that value is used as the partial result
// in preference to the session checkpoint.
type Func func(ctx context.Context, session *Session) (any, error)

// Recorder persists finished runs. Errors are logged and otherwise
// ignored; a run's outcome never depends on its recording.
type Recorder interface {
	RecordRun(ctx context.Context, result *Result) error
}

// PanicError is the error reported for a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (err *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", err.Value)
}

// Config wires a Runner.
type Config struct {
	// Model answers every gateway call. Required.
	Model gateway.Model

	// NewEstimator returns the token estimator for one run. Defaults
	// to gateway.NewCharEstimator.
	NewEstimator func() gateway.TokenEstimator

	Clock    clock.Clock
	Logger   *slog.Logger
	Recorder Recorder

	// PollInterval overrides the watchdog period. By default it is a
	// twentieth of the runtime ceiling, between 1ms and 250ms.
	PollInterval time.Duration
}

// Runner executes tasks. A Runner holds no per-run state and may run
// tasks concurrently; each run gets its own budget.
type Runner struct {
	model        gateway.Model
	newEstimator func() gateway.TokenEstimator
	clock        clock.Clock
	logger       *slog.Logger
	recorder     Recorder
	pollInterval time.Duration
}

// NewRunner returns a Runner for config.
func NewRunner(config Config) (*Runner, error) {
	if config.Model == nil {
		return nil, errors.New("task: model is required")
	}
	if config.NewEstimator == nil {
		config.NewEstimator = func() gateway.TokenEstimator { return gateway.NewCharEstimator() }
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		model:        config.Model,
		newEstimator: config.NewEstimator,
		clock:        config.Clock,
		logger:       config.Logger,
		recorder:     config.Recorder,
		pollInterval: config.PollInterval,
	}, nil
}

type outcome struct {
	value any
	err   error
}

// Run executes fn against text under budget and always returns a
// Result. name labels the run in logs and records.
func (runner *Runner) Run(ctx context.Context, name string, fn Func, text string, budget guard.Config) *Result {
	result := &Result{
		RunID:     uuid.NewString(),
		Task:      name,
		StartedAt: runner.clock.Now(),
	}
	logger := runner.logger.With("run_id", result.RunID, "task", name)

	limits, err := guard.New(budget, runner.clock)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		result.BudgetSummary = BudgetSummary{
			CostBudgetUSD:       budget.MaxCost,
			RuntimeLimitSeconds: budget.MaxRuntime.Seconds(),
			Model:               budget.Model,
		}
		logger.Error("task rejected", "error", err)
		runner.record(ctx, logger, result)
		return result
	}

	accessLog := navigator.NewAccessLog()
	calls, err := gateway.New(gateway.Config{
		Guard:     limits,
		Model:     runner.model,
		Estimator: runner.newEstimator(),
		Clock:     runner.clock,
		Logger:    logger,
	})
	if err != nil {
		// Unreachable with a non-nil guard and model.
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}
	session := newSession(text, navigator.New(text, accessLog), calls, runner.clock)

	logger.Info("task started",
		"context_length", session.Navigator().Len(),
		"max_cost", budget.MaxCost,
		"max_runtime", budget.MaxRuntime,
		"model", budget.Model,
	)

	finished := runner.execute(ctx, fn, session, limits, budget.MaxRuntime)
	partial := session.seal()

	var limit *guard.LimitError
	switch {
	case finished.err == nil:
		result.Status = StatusCompleted
		result.Value = finished.value
	case errors.As(finished.err, &limit):
		result.Status = StatusPartial
		result.Error = limit.Error()
		result.Limit = limit.Kind.String()
		result.Value = partial
		if finished.value != nil {
			result.Value = finished.value
		}
	default:
		result.Status = StatusError
		result.Error = finished.err.Error()
	}

	result.BudgetSummary = summarize(limits.Summary(), result.Status)
	result.AccessSummary = accessLog.Summary()
	result.Subcalls = calls.Records()

	attributes := []any{
		"status", result.Status,
		"total_cost_usd", result.BudgetSummary.TotalCostUSD,
		"total_calls", result.BudgetSummary.TotalCalls,
		"elapsed_seconds", result.BudgetSummary.ElapsedSeconds,
	}
	switch result.Status {
	case StatusCompleted:
		logger.Info("task completed", attributes...)
	case StatusPartial:
		logger.Warn("task stopped by budget", append(attributes, "limit", result.Limit)...)
	default:
		var panicked *PanicError
		if errors.As(finished.err, &panicked) {
			attributes = append(attributes, "stack", string(panicked.Stack))
		}
		logger.Error("task failed", append(attributes, "error", result.Error)...)
	}

	runner.record(ctx, logger, result)
	return result
}

// execute runs fn on its own goroutine and waits for it, the runtime
// watchdog, or cancellation of ctx, whichever comes first.
func (runner *Runner) execute(ctx context.Context, fn Func, session *Session, limits *guard.Guard, maxRuntime time.Duration) outcome {
	taskContext, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome{err: &PanicError{Value: recovered, Stack: debug.Stack()}}
			}
		}()
		value, err := fn(taskContext, session)
		done <- outcome{value: value, err: err}
	}()

	ticker := runner.clock.NewTicker(runner.interval(maxRuntime))
	defer ticker.Stop()

	for {
		select {
		case finished := <-done:
			return finished
		case <-ticker.C:
			if err := limits.AdmitRuntime(); err != nil {
				cancel(err)
				// A task that finished in the same instant keeps its
				// own outcome.
				select {
				case finished := <-done:
					return finished
				default:
					return outcome{err: err}
				}
			}
		case <-ctx.Done():
			cancel(context.Cause(ctx))
			select {
			case finished := <-done:
				return finished
			default:
				return outcome{err: fmt.Errorf("task cancelled: %w", context.Cause(ctx))}
			}
		}
	}
}

func (runner *Runner) interval(maxRuntime time.Duration) time.Duration {
	if runner.pollInterval > 0 {
		return runner.pollInterval
	}
	return min(max(maxRuntime/20, time.Millisecond), 250*time.Millisecond)
}

func (runner *Runner) record(ctx context.Context, logger *slog.Logger, result *Result) {
	if runner.recorder == nil {
		return
	}
	if err := runner.recorder.RecordRun(context.WithoutCancel(ctx), result); err != nil {
		logger.Error("recording run failed", "error", err)
	}
}

// Run is a one-shot convenience for NewRunner followed by Runner.Run
// with default collaborators.
func Run(ctx context.Context, fn Func, text string, budget guard.Config, model gateway.Model) *Result {
	runner, err := NewRunner(Config{Model: model})
	if err != nil {
		return &Result{RunID: uuid.NewString(), Status: StatusError, Error: err.Error()}
	}
	return runner.Run(ctx, "", fn, text, budget)
}
