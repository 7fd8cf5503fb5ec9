// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"encoding/json"
	"time"

	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/guard"
	"github.com/bureau-foundation/rlm/lib/navigator"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted means the task returned normally.
	StatusCompleted Status = "completed"

	// StatusPartial means a budget limit stopped the task. The result
	// is whatever the task had saved, possibly nil.
	StatusPartial Status = "partial"

	// StatusError means the task failed for a reason other than a
	// budget limit. There is no result.
	StatusError Status = "error"
)

// Result is the envelope returned by every run.
type Result struct {
	RunID  string `json:"run_id"`
	Task   string `json:"task,omitempty"`
	Status Status `json:"status"`

	// Value is the task's return value (completed) or its saved partial
	// result (partial). It is omitted from JSON for StatusError.
	Value any `json:"result"`

	Error string `json:"error,omitempty"`

	// Limit names the budget kind that stopped a partial run.
	Limit string `json:"limit,omitempty"`

	BudgetSummary BudgetSummary           `json:"budget_summary"`
	AccessSummary navigator.AccessSummary `json:"access_summary"`
	StartedAt     time.Time               `json:"started_at"`

	// Subcalls is the gateway audit trail in issue order. It is stored
	// by a Recorder rather than printed with the envelope.
	Subcalls []gateway.SubcallRecord `json:"-"`
}

// MarshalJSON drops the result key from error envelopes and keeps it,
// even when null, on the other two.
func (result Result) MarshalJSON() ([]byte, error) {
	type envelope Result
	if result.Status == StatusError {
		return json.Marshal(struct {
			envelope
			Value any `json:"result,omitempty"`
		}{envelope: envelope(result)})
	}
	return json.Marshal(envelope(result))
}

// BudgetSummary reports consumption at the end of a run.
type BudgetSummary struct {
	TotalCostUSD  float64 `json:"total_cost_usd"`
	CostBudgetUSD float64 `json:"cost_budget_usd"`

	// CostRemainingUSD is reported for partial runs only.
	CostRemainingUSD *float64 `json:"cost_remaining_usd,omitempty"`

	// OverageCostUSD is the part of TotalCostUSD spent by the call that
	// broke the cost budget.
	OverageCostUSD float64 `json:"overage_cost_usd,omitempty"`

	TotalCalls          int     `json:"total_calls"`
	TotalInputTokens    int64   `json:"total_input_tokens"`
	TotalOutputTokens   int64   `json:"total_output_tokens"`
	ElapsedSeconds      float64 `json:"elapsed_seconds"`
	RuntimeLimitSeconds float64 `json:"runtime_limit_seconds"`
	Model               string  `json:"model,omitempty"`
}

func summarize(summary guard.Summary, status Status) BudgetSummary {
	budget := BudgetSummary{
		TotalCostUSD:        summary.TotalCost(),
		CostBudgetUSD:       summary.Budget,
		OverageCostUSD:      summary.Overage,
		TotalCalls:          summary.Calls,
		TotalInputTokens:    summary.InputTokens,
		TotalOutputTokens:   summary.OutputTokens,
		ElapsedSeconds:      summary.Elapsed.Seconds(),
		RuntimeLimitSeconds: summary.RuntimeLimit.Seconds(),
		Model:               summary.Model,
	}
	if status == StatusPartial {
		remaining := summary.Remaining()
		budget.CostRemainingUSD = &remaining
	}
	return budget
}
