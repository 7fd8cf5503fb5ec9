// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"context"
	"fmt"

	"go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/bureau-foundation/rlm/lib/navigator"
	"github.com/bureau-foundation/rlm/lib/task"
)

// builtinNames lists every predeclared name a script may use besides
// the Starlark universe.
var builtinNames = map[string]bool{
	"context_head":            true,
	"context_tail":            true,
	"context_slice":           true,
	"context_search":          true,
	"context_chunks":          true,
	"context_around":          true,
	"context_length":          true,
	"semantic_subcall":        true,
	"semantic_subcall_json":   true,
	"semantic_subcall_bool":   true,
	"semantic_subcall_choice": true,
	"checkpoint":              true,
	"accumulate":              true,
	"json":                    true,
	"struct":                  true,
}

func isPredeclared(name string) bool { return builtinNames[name] }

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// environment binds the builtins of one run to its session.
type environment struct {
	ctx     context.Context
	session *task.Session
}

func (environment *environment) predeclared() starlark.StringDict {
	functions := map[string]builtinFunc{
		"context_head":            environment.head,
		"context_tail":            environment.tail,
		"context_slice":           environment.slice,
		"context_search":          environment.search,
		"context_chunks":          environment.chunks,
		"context_around":          environment.around,
		"context_length":          environment.length,
		"semantic_subcall":        environment.subcall,
		"semantic_subcall_json":   environment.subcallJSON,
		"semantic_subcall_bool":   environment.subcallBool,
		"semantic_subcall_choice": environment.subcallChoice,
		"checkpoint":              environment.checkpoint,
		"accumulate":              environment.accumulate,
	}
	predeclared := starlark.StringDict{
		"json":   json.Module,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	for name, function := range functions {
		predeclared[name] = starlark.NewBuiltin(name, function)
	}
	return predeclared
}

func (environment *environment) head(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs, "n", &n); err != nil {
		return nil, err
	}
	return starlark.String(environment.session.Navigator().Head(n)), nil
}

func (environment *environment) tail(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs, "n", &n); err != nil {
		return nil, err
	}
	return starlark.String(environment.session.Navigator().Tail(n)), nil
}

func (environment *environment) slice(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var start, end int
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs, "start", &start, "end", &end); err != nil {
		return nil, err
	}
	return starlark.String(environment.session.Navigator().Slice(start, end)), nil
}

func (environment *environment) length(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.MakeInt(environment.session.Navigator().Len()), nil
}

func (environment *environment) search(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string
	maxHits := 10
	caseSensitive := false
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs,
		"pattern", &pattern, "max_hits?", &maxHits, "case_sensitive?", &caseSensitive); err != nil {
		return nil, err
	}
	var options []navigator.SearchOption
	if caseSensitive {
		options = append(options, navigator.CaseSensitive())
	}
	matches, err := environment.session.Navigator().Search(pattern, maxHits, options...)
	if err != nil {
		return nil, err
	}
	values := make([]starlark.Value, len(matches))
	for index, match := range matches {
		values[index] = matchStruct(match)
	}
	return starlark.NewList(values), nil
}

func matchStruct(match navigator.Match) *starlarkstruct.Struct {
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"start": starlark.MakeInt(match.Start),
		"end":   starlark.MakeInt(match.End),
		"text":  starlark.String(match.Text),
		"line":  starlark.MakeInt(match.Line),
	})
}

// chunks returns (start, end, text) tuples. overlap must be smaller
// than size.
func (environment *environment) chunks(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var size int
	overlap := 0
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs, "size", &size, "overlap?", &overlap); err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, fmt.Errorf("%s: size must be positive, got %d", builtin.Name(), size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%s: overlap must be in [0, %d), got %d", builtin.Name(), size, overlap)
	}
	var values []starlark.Value
	for chunk := range environment.session.Navigator().Chunks(size, size-overlap) {
		values = append(values, starlark.Tuple{
			starlark.MakeInt(chunk.Start),
			starlark.MakeInt(chunk.End),
			starlark.String(chunk.Text),
		})
	}
	return starlark.NewList(values), nil
}

func (environment *environment) around(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var match *starlarkstruct.Struct
	before, after := 200, 200
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs,
		"match", &match, "before?", &before, "after?", &after); err != nil {
		return nil, err
	}
	start, err := intAttr(match, "start")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", builtin.Name(), err)
	}
	end, err := intAttr(match, "end")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", builtin.Name(), err)
	}
	text := environment.session.Navigator().Around(navigator.Match{Start: start, End: end}, before, after)
	return starlark.String(text), nil
}

func intAttr(value *starlarkstruct.Struct, name string) (int, error) {
	attribute, err := value.Attr(name)
	if err != nil {
		return 0, err
	}
	var result int
	if err := starlark.AsInt(attribute, &result); err != nil {
		return 0, fmt.Errorf("match.%s: %w", name, err)
	}
	return result, nil
}

func (environment *environment) subcall(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt, chunk string
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs, "prompt", &prompt, "chunk", &chunk); err != nil {
		return nil, err
	}
	text, err := environment.session.Gateway().Invoke(environment.ctx, prompt, chunk)
	if err != nil {
		return nil, err
	}
	return starlark.String(text), nil
}

func (environment *environment) subcallJSON(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt, chunk string
	var fallback starlark.Value = starlark.None
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs,
		"prompt", &prompt, "chunk", &chunk, "default?", &fallback); err != nil {
		return nil, err
	}
	value, err := environment.session.Gateway().InvokeJSON(environment.ctx, prompt, chunk, fallback)
	if err != nil {
		return nil, err
	}
	if decoded, isStarlark := value.(starlark.Value); isStarlark {
		return decoded, nil
	}
	return toStarlark(value), nil
}

func (environment *environment) subcallBool(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt, chunk string
	fallback := false
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs,
		"prompt", &prompt, "chunk", &chunk, "default?", &fallback); err != nil {
		return nil, err
	}
	answer, err := environment.session.Gateway().InvokeBool(environment.ctx, prompt, chunk, fallback)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(answer), nil
}

// subcallChoice returns None when nothing matches and no default is
// given.
func (environment *environment) subcallChoice(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt, chunk string
	var choices *starlark.List
	var fallback starlark.Value = starlark.None
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs,
		"prompt", &prompt, "chunk", &chunk, "choices", &choices, "default?", &fallback); err != nil {
		return nil, err
	}
	labels := make([]string, choices.Len())
	for index := range choices.Len() {
		label, ok := starlark.AsString(choices.Index(index))
		if !ok {
			return nil, fmt.Errorf("%s: choices[%d] is %s, want string", builtin.Name(), index, choices.Index(index).Type())
		}
		labels[index] = label
	}
	const noMatch = "\x00"
	choice, err := environment.session.Gateway().InvokeChoice(environment.ctx, prompt, chunk, labels, noMatch)
	if err != nil {
		return nil, err
	}
	if choice == noMatch {
		return fallback, nil
	}
	return starlark.String(choice), nil
}

func (environment *environment) checkpoint(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackArgs(builtin.Name(), args, kwargs, "value", &value); err != nil {
		return nil, err
	}
	environment.session.Checkpoint(fromStarlark(value))
	return starlark.None, nil
}

func (environment *environment) accumulate(_ *starlark.Thread, builtin *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", builtin.Name())
	}
	items := make([]any, len(args))
	for index, arg := range args {
		items[index] = fromStarlark(arg)
	}
	environment.session.Accumulate(items...)
	return starlark.None, nil
}
