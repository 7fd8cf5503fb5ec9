// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"slices"
	"sync"

	"github.com/bureau-foundation/rlm/lib/clock"
	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/navigator"
)

// Session is everything a task can reach: the context document through
// a Navigator, model calls through a Gateway, and the two ways of
// leaving a partial result behind (Checkpoint and Accumulate).
//
// A Session belongs to one Run. Once the runner has decided the outcome
// the session is sealed and further checkpoints are ignored, so a task
// goroutine that outlives its run cannot change the reported result.
type Session struct {
	text      string
	navigator *navigator.Navigator
	gateway   *gateway.Gateway
	clock     clock.Clock

	mu            sync.Mutex
	sealed        bool
	checkpoint    any
	hasCheckpoint bool
	accumulated   []any
}

func newSession(text string, navigator *navigator.Navigator, gateway *gateway.Gateway, source clock.Clock) *Session {
	return &Session{
		text:      text,
		navigator: navigator,
		gateway:   gateway,
		clock:     source,
	}
}

// Text returns the full context document.
func (session *Session) Text() string { return session.text }

// Navigator returns the read-only view of the context.
func (session *Session) Navigator() *navigator.Navigator { return session.navigator }

// Gateway returns the budget-enforced model gateway.
func (session *Session) Gateway() *gateway.Gateway { return session.gateway }

// Clock returns the clock the run is measured against.
func (session *Session) Clock() clock.Clock { return session.clock }

// Checkpoint replaces the partial result reported if the run stops on a
// budget limit. The value should not be mutated afterwards.
func (session *Session) Checkpoint(value any) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.sealed {
		return
	}
	session.checkpoint = value
	session.hasCheckpoint = true
}

// Accumulate appends finished work items. When a run stops on a limit
// without any Checkpoint, the accumulated items become the partial
// result.
func (session *Session) Accumulate(items ...any) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.sealed {
		return
	}
	session.accumulated = append(session.accumulated, items...)
}

// seal freezes the session and returns the partial result it holds.
func (session *Session) seal() any {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.sealed = true
	if session.hasCheckpoint {
		return session.checkpoint
	}
	if len(session.accumulated) > 0 {
		return map[string]any{
			"partial_results": slices.Clone(session.accumulated),
			"items_processed": len(session.accumulated),
		}
	}
	return nil
}
