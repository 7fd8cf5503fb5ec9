// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"errors"
	"fmt"
)

// Kind identifies which resource ceiling a LimitError refers to.
type Kind int

const (
	KindCost Kind = iota + 1
	KindTokens
	KindDepth
	KindRuntime
)

// String returns the short name used in result envelopes and logs.
func (kind Kind) String() string {
	switch kind {
	case KindCost:
		return "cost"
	case KindTokens:
		return "tokens"
	case KindDepth:
		return "depth"
	case KindRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("Kind(%d)", int(kind))
	}
}

// Sentinels for errors.Is. Each matches every LimitError of the
// corresponding Kind.
var (
	ErrCostLimit      = errors.New("cost limit exceeded")
	ErrTokenLimit     = errors.New("token limit exceeded")
	ErrRecursionDepth = errors.New("recursion depth exceeded")
	ErrRuntimeLimit   = errors.New("runtime limit exceeded")
)

// LimitError reports a rejected admission. It is the only error type the
// Guard returns from its Admit methods, and the harness treats any
// LimitError in a task's error chain as a partial (not failed) outcome.
type LimitError struct {
	Kind Kind

	// Limit is the configured ceiling in the kind's unit: dollars,
	// tokens, depth, or seconds.
	Limit float64

	// Current is what had already been consumed (cost) or what was
	// observed (requested tokens, attempted depth, elapsed seconds).
	Current float64

	// Requested is the rejected cost increment. Zero for other kinds.
	Requested float64
}

func (err *LimitError) Error() string {
	switch err.Kind {
	case KindCost:
		return fmt.Sprintf("cost limit exceeded: $%.6f spent + $%.6f requested > $%.4f budget",
			err.Current, err.Requested, err.Limit)
	case KindTokens:
		return fmt.Sprintf("token limit exceeded: %.0f tokens requested > %.0f per subcall",
			err.Current, err.Limit)
	case KindDepth:
		return fmt.Sprintf("recursion depth exceeded: attempted call at depth %.0f, max depth %.0f",
			err.Current, err.Limit)
	case KindRuntime:
		return fmt.Sprintf("runtime limit exceeded: %.2fs elapsed > %.2fs limit",
			err.Current, err.Limit)
	default:
		return fmt.Sprintf("limit exceeded: %s", err.Kind)
	}
}

// Is matches the sentinel for the error's Kind.
func (err *LimitError) Is(target error) bool {
	return target == err.Kind.sentinel()
}

func (kind Kind) sentinel() error {
	switch kind {
	case KindCost:
		return ErrCostLimit
	case KindTokens:
		return ErrTokenLimit
	case KindDepth:
		return ErrRecursionDepth
	case KindRuntime:
		return ErrRuntimeLimit
	default:
		return nil
	}
}

// AsLimitError returns the first LimitError in err's chain.
func AsLimitError(err error) (*LimitError, bool) {
	var limitError *LimitError
	if errors.As(err, &limitError) {
		return limitError, true
	}
	return nil, false
}
