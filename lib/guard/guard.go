// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package guard implements the per-execution budget: four independent
// ceilings (cost, tokens per call, call depth, wall-clock runtime) and
// the admission checks that enforce them.
//
// Every Admit method checks before it commits. A rejected admission
// returns a *LimitError and leaves the budget exactly as it was. All
// methods are safe for concurrent use; each check-then-commit sequence
// runs under one mutex so parallel callers cannot both pass a check
// that only one of them fits under.
//
// A Guard belongs to one task execution. There is no package-level
// state: the harness creates a Guard, hands it to the gateway, and
// discards both when the task finishes.
package guard

import (
	"sync"
	"time"

	"github.com/bureau-foundation/rlm/lib/clock"
	"github.com/bureau-foundation/rlm/lib/pricing"
)

// Guard tracks consumption for one task execution.
type Guard struct {
	config Config
	price  pricing.Price
	clock  clock.Clock

	mu           sync.Mutex
	started      time.Time
	spent        float64
	overage      float64
	exhausted    bool
	calls        int
	inputTokens  int64
	outputTokens int64
}

// New validates config and returns a Guard whose runtime clock starts
// now.
func New(config Config, source clock.Clock) (*Guard, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	price, err := config.ResolvePrice()
	if err != nil {
		return nil, err
	}
	if source == nil {
		source = clock.Real()
	}
	return &Guard{
		config:  config,
		price:   price,
		clock:   source,
		started: source.Now(),
	}, nil
}

// Config returns the configuration the Guard enforces.
func (guard *Guard) Config() Config { return guard.config }

// Price returns the resolved per-million-token rate.
func (guard *Guard) Price() pricing.Price { return guard.price }

// AdmitCost commits delta dollars of spend if the total stays within
// MaxCost. Once the budget is exhausted by an overage every further
// admission fails, including a zero delta.
func (guard *Guard) AdmitCost(delta float64) error {
	guard.mu.Lock()
	defer guard.mu.Unlock()

	if err := guard.checkCostLocked(delta); err != nil {
		return err
	}
	guard.spent += delta
	return nil
}

// CheckCost reports whether delta would be admitted without committing
// anything. The gateway uses it to refuse a call whose input alone is
// already unaffordable.
func (guard *Guard) CheckCost(delta float64) error {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	return guard.checkCostLocked(delta)
}

func (guard *Guard) checkCostLocked(delta float64) error {
	if guard.exhausted || delta < 0 || guard.spent+delta > guard.config.MaxCost {
		return &LimitError{
			Kind:      KindCost,
			Limit:     guard.config.MaxCost,
			Current:   guard.spent + guard.overage,
			Requested: delta,
		}
	}
	return nil
}

// AdmitTokens rejects a single call whose estimated size exceeds
// MaxTokensPerSubcall. Nothing is recorded either way.
func (guard *Guard) AdmitTokens(requested int) error {
	if requested > guard.config.MaxTokensPerSubcall {
		return &LimitError{
			Kind:    KindTokens,
			Limit:   float64(guard.config.MaxTokensPerSubcall),
			Current: float64(requested),
		}
	}
	return nil
}

// AdmitDepth rejects a call issued from currentDepth when that depth has
// already reached the ceiling.
func (guard *Guard) AdmitDepth(currentDepth int) error {
	if currentDepth >= guard.config.MaxDepth {
		return &LimitError{
			Kind:    KindDepth,
			Limit:   float64(guard.config.MaxDepth),
			Current: float64(currentDepth),
		}
	}
	return nil
}

// AdmitRuntime fails once more than MaxRuntime has elapsed since New.
func (guard *Guard) AdmitRuntime() error {
	elapsed := guard.clock.Now().Sub(guard.started)
	if elapsed > guard.config.MaxRuntime {
		return &LimitError{
			Kind:    KindRuntime,
			Limit:   guard.config.MaxRuntime.Seconds(),
			Current: elapsed.Seconds(),
		}
	}
	return nil
}

// RecordCall counts one dispatched model call and its token usage.
// Calls are counted whether or not their cost is later admitted.
func (guard *Guard) RecordCall(inputTokens, outputTokens int64) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	guard.calls++
	guard.inputTokens += inputTokens
	guard.outputTokens += outputTokens
}

// ChargeOverage records spend that was incurred by a call whose cost
// could not be admitted, and closes the budget. The admitted spend is
// untouched; the overage appears separately in Summary.
func (guard *Guard) ChargeOverage(delta float64) {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	if delta > 0 {
		guard.overage += delta
	}
	guard.exhausted = true
}

// Exhausted reports whether an overage has closed the budget.
func (guard *Guard) Exhausted() bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()
	return guard.exhausted
}

// Summary is a point-in-time snapshot of consumption. It is for
// reporting only; admission decisions never read it.
type Summary struct {
	Model string

	// Spent is the admitted spend, always within Budget.
	Spent float64
	// Overage is spend incurred by the call that broke the budget.
	Overage float64
	Budget  float64

	Calls        int
	InputTokens  int64
	OutputTokens int64

	Elapsed      time.Duration
	RuntimeLimit time.Duration
}

// TotalCost is all real-world spend: admitted plus overage.
func (summary Summary) TotalCost() float64 { return summary.Spent + summary.Overage }

// Remaining is the unspent budget, never negative.
func (summary Summary) Remaining() float64 {
	return max(0, summary.Budget-summary.TotalCost())
}

// Summary returns the current consumption snapshot.
func (guard *Guard) Summary() Summary {
	now := guard.clock.Now()

	guard.mu.Lock()
	defer guard.mu.Unlock()
	return Summary{
		Model:        guard.config.Model,
		Spent:        guard.spent,
		Overage:      guard.overage,
		Budget:       guard.config.MaxCost,
		Calls:        guard.calls,
		InputTokens:  guard.inputTokens,
		OutputTokens: guard.outputTokens,
		Elapsed:      now.Sub(guard.started),
		RuntimeLimit: guard.config.MaxRuntime,
	}
}
