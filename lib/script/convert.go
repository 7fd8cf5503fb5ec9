// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// toStarlark converts a decoded JSON value (map[string]any, []any,
// float64, string, bool, nil) to Starlark. Integral numbers become
// ints, as json.decode would produce, and dict keys are inserted in
// sorted order.
func toStarlark(value any) starlark.Value {
	switch value := value.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(value)
	case string:
		return starlark.String(value)
	case int:
		return starlark.MakeInt(value)
	case int64:
		return starlark.MakeInt64(value)
	case float64:
		if value == math.Trunc(value) && math.Abs(value) < 1<<53 {
			return starlark.MakeInt64(int64(value))
		}
		return starlark.Float(value)
	case []any:
		elements := make([]starlark.Value, len(value))
		for index, element := range value {
			elements[index] = toStarlark(element)
		}
		return starlark.NewList(elements)
	case map[string]any:
		dict := starlark.NewDict(len(value))
		for _, key := range slices.Sorted(maps.Keys(value)) {
			_ = dict.SetKey(starlark.String(key), toStarlark(value[key]))
		}
		return dict
	case starlark.Value:
		return value
	default:
		return starlark.String(fmt.Sprint(value))
	}
}

// fromStarlark converts a Starlark value to plain Go values suitable
// for a JSON result. Dict keys that are not strings are formatted with
// their Starlark representation; values with no JSON counterpart become
// their string form.
func fromStarlark(value starlark.Value) any {
	switch value := value.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(value)
	case starlark.Int:
		if integer, ok := value.Int64(); ok {
			return integer
		}
		return value.String()
	case starlark.Float:
		return float64(value)
	case starlark.String:
		return string(value)
	case starlark.Bytes:
		return string(value)
	case *starlark.List:
		return fromIterable(value, value.Len())
	case starlark.Tuple:
		return fromIterable(value, value.Len())
	case *starlark.Set:
		return fromIterable(value, value.Len())
	case *starlark.Dict:
		result := make(map[string]any, value.Len())
		for _, item := range value.Items() {
			result[dictKey(item[0])] = fromStarlark(item[1])
		}
		return result
	case *starlarkstruct.Struct:
		result := make(map[string]any)
		for _, name := range value.AttrNames() {
			attribute, err := value.Attr(name)
			if err == nil {
				result[name] = fromStarlark(attribute)
			}
		}
		return result
	default:
		return value.String()
	}
}

func fromIterable(iterable starlark.Iterable, length int) []any {
	result := make([]any, 0, length)
	iterator := iterable.Iterate()
	defer iterator.Done()
	var element starlark.Value
	for iterator.Next(&element) {
		result = append(result, fromStarlark(element))
	}
	return result
}

func dictKey(key starlark.Value) string {
	if text, ok := starlark.AsString(key); ok {
		return text
	}
	return key.String()
}
