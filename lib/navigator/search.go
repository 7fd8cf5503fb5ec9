// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package navigator

import (
	"errors"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds the time a single Search may spend inside
// the regex engine. Backtracking patterns over large buffers can
// otherwise run for minutes.
const DefaultMatchTimeout = 2 * time.Second

// ErrNegativeMaxHits is returned by Search for a negative cap.
var ErrNegativeMaxHits = errors.New("navigator: max hits must not be negative")

// PatternError reports a search pattern the regex engine rejected.
type PatternError struct {
	Pattern string
	Err     error
}

func (err *PatternError) Error() string {
	return fmt.Sprintf("navigator: invalid pattern %q: %v", err.Pattern, err.Err)
}

func (err *PatternError) Unwrap() error { return err.Err }

// Match is one search hit. Start and End are character offsets with End
// exclusive; Line is the 1-based line on which the match starts.
type Match struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Line  int    `json:"line"`
}

type searchSettings struct {
	caseSensitive bool
	timeout       time.Duration
}

// SearchOption adjusts a single Search call.
type SearchOption func(*searchSettings)

// CaseSensitive makes the pattern match case exactly. Searches ignore
// case by default.
func CaseSensitive() SearchOption {
	return func(settings *searchSettings) { settings.caseSensitive = true }
}

// MatchTimeout replaces DefaultMatchTimeout for one call.
func MatchTimeout(timeout time.Duration) SearchOption {
	return func(settings *searchSettings) { settings.timeout = timeout }
}

// Search returns at most maxHits non-overlapping matches of pattern in
// the order they occur. The pattern is compiled before the cap is
// consulted, so a malformed pattern is reported even when maxHits is
// zero. The pattern syntax is that of .NET and Python regular
// expressions (lookaround and backreferences are supported).
func (navigator *Navigator) Search(pattern string, maxHits int, options ...SearchOption) ([]Match, error) {
	settings := searchSettings{timeout: DefaultMatchTimeout}
	for _, option := range options {
		option(&settings)
	}

	flags := regexp2.RegexOptions(regexp2.None)
	if !settings.caseSensitive {
		flags |= regexp2.IgnoreCase
	}
	expression, err := regexp2.Compile(pattern, flags)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	expression.MatchTimeout = settings.timeout

	if maxHits < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeMaxHits, maxHits)
	}

	matches := make([]Match, 0, min(maxHits, 16))
	if maxHits > 0 {
		found, err := expression.FindRunesMatch(navigator.runes)
		for found != nil && err == nil && len(matches) < maxHits {
			matches = append(matches, Match{
				Start: found.Index,
				End:   found.Index + found.Length,
				Text:  found.String(),
				Line:  navigator.LineAt(found.Index),
			})
			if len(matches) == maxHits {
				break
			}
			found, err = expression.FindNextMatch(found)
		}
		if err != nil {
			return nil, fmt.Errorf("navigator: searching for %q: %w", pattern, err)
		}
	}

	navigator.log.record("search", 0)
	return matches, nil
}
