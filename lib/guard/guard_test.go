// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/rlm/lib/clock"
	"github.com/bureau-foundation/rlm/lib/pricing"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestGuard(t *testing.T, mutate func(*Config)) (*Guard, *clock.FakeClock) {
	t.Helper()
	config := DefaultConfig()
	config.MaxCost = 1.0
	if mutate != nil {
		mutate(&config)
	}
	fake := clock.Fake(epoch)
	guard, err := New(config, fake)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return guard, fake
}

func TestAdmitCostMonotonicAndBounded(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)

	deltas := []float64{0.25, 0, 0.5, 0.125, 0.5, 0.125, 0.25}
	previous := 0.0
	for index, delta := range deltas {
		_ = guard.AdmitCost(delta)
		summary := guard.Summary()
		if summary.Spent < previous {
			t.Fatalf("step %d: spent decreased from %v to %v", index, previous, summary.Spent)
		}
		if summary.Spent > summary.Budget {
			t.Fatalf("step %d: spent %v exceeds budget %v", index, summary.Spent, summary.Budget)
		}
		previous = summary.Spent
	}
	if previous != 1.0 {
		t.Errorf("final spent = %v, want 1.0", previous)
	}
}

func TestAdmitCostRejectionLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)

	if err := guard.AdmitCost(0.75); err != nil {
		t.Fatalf("AdmitCost(0.75): %v", err)
	}
	before := guard.Summary()

	err := guard.AdmitCost(0.5)
	if !errors.Is(err, ErrCostLimit) {
		t.Fatalf("AdmitCost(0.5) error = %v, want ErrCostLimit", err)
	}
	limitError, ok := AsLimitError(err)
	if !ok {
		t.Fatalf("AdmitCost error %T is not a *LimitError", err)
	}
	if limitError.Kind != KindCost || limitError.Requested != 0.5 || limitError.Current != 0.75 {
		t.Errorf("LimitError = %+v", limitError)
	}

	after := guard.Summary()
	if after.Spent != before.Spent || after.Calls != before.Calls {
		t.Errorf("rejected admission changed state: before %+v after %+v", before, after)
	}
}

func TestAdmitCostExactBudgetAllowed(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)
	if err := guard.AdmitCost(1.0); err != nil {
		t.Fatalf("AdmitCost at exactly the budget: %v", err)
	}
	if err := guard.AdmitCost(0); err != nil {
		t.Fatalf("AdmitCost(0) at a full budget: %v", err)
	}
	if err := guard.AdmitCost(0.01); !errors.Is(err, ErrCostLimit) {
		t.Fatalf("AdmitCost past the budget error = %v, want ErrCostLimit", err)
	}
}

func TestAdmitCostRejectsNegativeDelta(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)
	if err := guard.AdmitCost(-0.1); !errors.Is(err, ErrCostLimit) {
		t.Fatalf("AdmitCost(-0.1) error = %v, want ErrCostLimit", err)
	}
}

func TestCheckCostDoesNotCommit(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)
	if err := guard.CheckCost(0.5); err != nil {
		t.Fatalf("CheckCost(0.5): %v", err)
	}
	if err := guard.CheckCost(2); !errors.Is(err, ErrCostLimit) {
		t.Fatalf("CheckCost(2) error = %v, want ErrCostLimit", err)
	}
	if spent := guard.Summary().Spent; spent != 0 {
		t.Fatalf("CheckCost committed spend: %v", spent)
	}
}

func TestChargeOverageExhaustsBudget(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)

	if err := guard.AdmitCost(0.75); err != nil {
		t.Fatalf("AdmitCost: %v", err)
	}
	guard.ChargeOverage(0.5)

	if !guard.Exhausted() {
		t.Fatal("Exhausted() = false after ChargeOverage")
	}
	if err := guard.AdmitCost(0); !errors.Is(err, ErrCostLimit) {
		t.Fatalf("AdmitCost(0) after overage error = %v, want ErrCostLimit", err)
	}

	summary := guard.Summary()
	if summary.Spent != 0.75 || summary.Overage != 0.5 || summary.TotalCost() != 1.25 {
		t.Errorf("summary = %+v, want spent 0.75 overage 0.5", summary)
	}
	if summary.Remaining() != 0 {
		t.Errorf("Remaining() = %v, want 0", summary.Remaining())
	}
}

func TestAdmitTokens(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, func(config *Config) { config.MaxTokensPerSubcall = 100 })

	tests := []struct {
		requested int
		wantErr   bool
	}{
		{0, false},
		{99, false},
		{100, false},
		{101, true},
		{1 << 20, true},
	}
	for _, test := range tests {
		err := guard.AdmitTokens(test.requested)
		if test.wantErr != errors.Is(err, ErrTokenLimit) {
			t.Errorf("AdmitTokens(%d) error = %v, wantErr %v", test.requested, err, test.wantErr)
		}
	}
}

func TestAdmitDepth(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)

	if err := guard.AdmitDepth(0); err != nil {
		t.Fatalf("AdmitDepth(0): %v", err)
	}
	for _, depth := range []int{1, 2, 10} {
		if err := guard.AdmitDepth(depth); !errors.Is(err, ErrRecursionDepth) {
			t.Errorf("AdmitDepth(%d) error = %v, want ErrRecursionDepth", depth, err)
		}
	}
}

func TestAdmitRuntime(t *testing.T) {
	t.Parallel()
	guard, fake := newTestGuard(t, func(config *Config) { config.MaxRuntime = 10 * time.Second })

	fake.Advance(10 * time.Second)
	if err := guard.AdmitRuntime(); err != nil {
		t.Fatalf("AdmitRuntime at exactly the limit: %v", err)
	}

	fake.Advance(time.Millisecond)
	err := guard.AdmitRuntime()
	if !errors.Is(err, ErrRuntimeLimit) {
		t.Fatalf("AdmitRuntime past the limit error = %v, want ErrRuntimeLimit", err)
	}
	if !strings.Contains(err.Error(), "runtime limit exceeded") {
		t.Errorf("error text %q does not name the runtime limit", err)
	}
}

func TestRecordCallAndSummary(t *testing.T) {
	t.Parallel()
	guard, fake := newTestGuard(t, nil)

	guard.RecordCall(100, 20)
	guard.RecordCall(50, 5)
	fake.Advance(3 * time.Second)

	summary := guard.Summary()
	if summary.Calls != 2 || summary.InputTokens != 150 || summary.OutputTokens != 25 {
		t.Errorf("summary counts = %+v", summary)
	}
	if summary.Elapsed != 3*time.Second {
		t.Errorf("Elapsed = %s, want 3s", summary.Elapsed)
	}
	if summary.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", summary.Model, DefaultModel)
	}
}

func TestConcurrentAdmitCostNeverOverspends(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, nil)

	var waitGroup sync.WaitGroup
	var admitted sync.Map
	for worker := range 64 {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if guard.AdmitCost(0.0625) == nil {
				admitted.Store(worker, true)
			}
		}()
	}
	waitGroup.Wait()

	count := 0
	admitted.Range(func(_, _ any) bool { count++; return true })
	if count != 16 {
		t.Errorf("admitted %d increments of 1/16, want 16", count)
	}
	if spent := guard.Summary().Spent; spent != 1.0 {
		t.Errorf("spent = %v, want 1.0", spent)
	}
}

func TestLimitErrorMessagesNameTheLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err      *LimitError
		sentinel error
		contains string
	}{
		{&LimitError{Kind: KindCost, Limit: 0.5, Current: 0.4, Requested: 0.2}, ErrCostLimit, "cost limit"},
		{&LimitError{Kind: KindTokens, Limit: 4000, Current: 5000}, ErrTokenLimit, "token limit"},
		{&LimitError{Kind: KindDepth, Limit: 1, Current: 1}, ErrRecursionDepth, "recursion depth"},
		{&LimitError{Kind: KindRuntime, Limit: 60, Current: 61}, ErrRuntimeLimit, "runtime limit"},
	}
	for _, test := range tests {
		t.Run(test.err.Kind.String(), func(t *testing.T) {
			if !strings.Contains(test.err.Error(), test.contains) {
				t.Errorf("Error() = %q, want it to contain %q", test.err.Error(), test.contains)
			}
			if !errors.Is(test.err, test.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", test.err, test.sentinel)
			}
			for _, other := range []error{ErrCostLimit, ErrTokenLimit, ErrRecursionDepth, ErrRuntimeLimit} {
				if other != test.sentinel && errors.Is(test.err, other) {
					t.Errorf("%s error also matches %v", test.err.Kind, other)
				}
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero cost", func(config *Config) { config.MaxCost = 0 }, "max_cost"},
		{"zero tokens", func(config *Config) { config.MaxTokensPerSubcall = 0 }, "max_tokens_per_subcall"},
		{"depth two", func(config *Config) { config.MaxDepth = 2 }, "max_depth"},
		{"zero runtime", func(config *Config) { config.MaxRuntime = 0 }, "max_runtime"},
		{"unknown model", func(config *Config) { config.Model = "mystery" }, "unknown model"},
		{"unknown model with price", func(config *Config) {
			config.Model = "mystery"
			config.Price = pricing.Price{InputPerMillion: 1, OutputPerMillion: 2}
		}, ""},
		{"negative price", func(config *Config) {
			config.Price = pricing.Price{InputPerMillion: -1}
		}, "price must not be negative"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := DefaultConfig()
			test.mutate(&config)
			err := config.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate error = %q, want it to mention %q", err, test.wantErr)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, clock.Fake(epoch)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("New(Config{}) error = %v, want ErrInvalidConfig", err)
	}
}
