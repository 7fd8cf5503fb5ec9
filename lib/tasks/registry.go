// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tasks holds the built-in task bodies and the registry the CLI
// resolves --task against.
//
// Every built-in follows the same two phases: narrow the document with
// the Navigator (search, head, tail, chunks), then ask the model about
// each bounded piece through the Gateway. The model never sees the whole
// document, and aggregation happens in Go. Each task checkpoints after
// every model call so a budget stop returns everything gathered so far.
package tasks

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/rlm/lib/task"
)

// ErrUnknownTask is returned by Lookup for an unregistered name.
var ErrUnknownTask = errors.New("tasks: unknown task")

// DefaultTask runs when no task is named.
const DefaultTask = "analyze_document"

// Definition is a registered task.
type Definition struct {
	Name        string
	Description string
	Func        task.Func
}

var registry = []Definition{
	{
		Name:        "analyze_document",
		Description: "Extract title, type, abstract, key points, and conclusion",
		Func:        AnalyzeDocument,
	},
	{
		Name:        "find_errors_in_log",
		Description: "Find and classify errors in a log file",
		Func:        FindErrorsInLog,
	},
	{
		Name:        "extract_entities",
		Description: "Extract people, organizations, locations, and dates",
		Func:        ExtractEntities,
	},
}

// Lookup returns the task registered under name.
func Lookup(name string) (Definition, error) {
	for _, definition := range registry {
		if definition.Name == name {
			return definition, nil
		}
	}
	return Definition{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownTask, name, strings.Join(Names(), ", "))
}

// All returns the registered tasks sorted by name.
func All() []Definition {
	sorted := slices.Clone(registry)
	slices.SortFunc(sorted, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return sorted
}

// Names returns the registered task names sorted.
func Names() []string {
	var names []string
	for _, definition := range All() {
		names = append(names, definition.Name)
	}
	return names
}
