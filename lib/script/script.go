// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package script runs tasks written in Starlark.
//
// A script defines task(context) and returns its result. It reaches the
// document and the model only through predeclared builtins, which map
// one to one onto the Navigator and Gateway of the running Session:
//
//	def task(context):
//	    findings = []
//	    for match in context_search(r"error|fatal", max_hits=5):
//	        chunk = context_around(match, before=100, after=200)
//	        findings.append(semantic_subcall_json("Classify this error.", chunk))
//	        checkpoint({"findings": findings})
//	    return {"findings": findings}
//
// Budget limits behave as in Go tasks: the builtin raises, the script
// stops, and the run reports the last checkpoint. A runtime limit also
// cancels the Starlark thread, so scripts stuck in pure computation stop
// too. An optional step ceiling bounds the work a script may do between
// model calls.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/bureau-foundation/rlm/lib/task"
)

// EntryPoint is the function every script must define.
const EntryPoint = "task"

// ErrNoEntryPoint is returned when a script does not define a callable
// task.
var ErrNoEntryPoint = errors.New("script: task function not defined")

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Option configures a Script.
type Option func(*Script)

// WithMaxSteps caps the Starlark computation steps of one run. Zero
// means no cap.
func WithMaxSteps(steps uint64) Option {
	return func(script *Script) { script.maxSteps = steps }
}

// WithLogger receives print() output and lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(script *Script) { script.logger = logger }
}

// Script is a compiled task script. It is immutable and may be run any
// number of times, concurrently.
type Script struct {
	name     string
	program  *starlark.Program
	maxSteps uint64
	logger   *slog.Logger
}

// Compile parses and resolves source. Undefined names are reported
// here rather than at run time.
func Compile(name string, source []byte, options ...Option) (*Script, error) {
	_, program, err := starlark.SourceProgramOptions(fileOptions, name, source, isPredeclared)
	if err != nil {
		return nil, fmt.Errorf("script: compiling %s: %w", name, err)
	}
	script := &Script{
		name:    name,
		program: program,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(script)
	}
	return script, nil
}

// LoadFile compiles the script at path.
func LoadFile(path string, options ...Option) (*Script, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: reading %s: %w", path, err)
	}
	return Compile(filepath.Base(path), source, options...)
}

// Name returns the name the script was compiled under.
func (script *Script) Name() string { return script.name }

// Run executes the script as a task. It has the task.Func signature.
func (script *Script) Run(ctx context.Context, session *task.Session) (any, error) {
	thread := &starlark.Thread{
		Name: script.name,
		Print: func(_ *starlark.Thread, message string) {
			script.logger.Info("script output", "script", script.name, "message", message)
		},
	}
	if script.maxSteps > 0 {
		thread.SetMaxExecutionSteps(script.maxSteps)
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(context.Cause(ctx).Error())
		case <-finished:
		}
	}()

	value, err := script.run(ctx, thread, session)
	if err != nil {
		// A cancelled thread reports only the reason string; return the
		// cause itself so a runtime limit stays recognizable.
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, err
	}
	return value, nil
}

func (script *Script) run(ctx context.Context, thread *starlark.Thread, session *task.Session) (any, error) {
	environment := &environment{ctx: ctx, session: session}
	globals, err := script.program.Init(thread, environment.predeclared())
	if err != nil {
		return nil, fmt.Errorf("script: initializing %s: %w", script.name, err)
	}
	entry, ok := globals[EntryPoint].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%w in %s", ErrNoEntryPoint, script.name)
	}
	result, err := starlark.Call(thread, entry, starlark.Tuple{starlark.String(session.Text())}, nil)
	if err != nil {
		var evalError *starlark.EvalError
		if errors.As(err, &evalError) {
			script.logger.Debug("script failed", "script", script.name, "backtrace", evalError.Backtrace())
		}
		return nil, err
	}
	return fromStarlark(result), nil
}
