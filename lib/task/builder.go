// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"time"

	"github.com/bureau-foundation/rlm/lib/guard"
	"github.com/bureau-foundation/rlm/lib/pricing"
)

// Builder assembles a guard.Config starting from guard.DefaultConfig.
//
//	budget, err := task.NewBuilder().
//		WithCostBudget(0.10).
//		WithRuntimeLimit(30 * time.Second).
//		Build()
type Builder struct {
	config guard.Config
}

// NewBuilder starts from the default ceilings.
func NewBuilder() *Builder {
	return &Builder{config: guard.DefaultConfig()}
}

// WithCostBudget sets the spending ceiling in US dollars.
func (builder *Builder) WithCostBudget(dollars float64) *Builder {
	builder.config.MaxCost = dollars
	return builder
}

// WithRuntimeLimit sets the wall-clock ceiling.
func (builder *Builder) WithRuntimeLimit(limit time.Duration) *Builder {
	builder.config.MaxRuntime = limit
	return builder
}

// WithTokenLimit sets the per-call input token ceiling.
func (builder *Builder) WithTokenLimit(tokens int) *Builder {
	builder.config.MaxTokensPerSubcall = tokens
	return builder
}

// WithModel selects the pricing catalog entry.
func (builder *Builder) WithModel(model string) *Builder {
	builder.config.Model = model
	return builder
}

// WithPrice overrides the catalog rate.
func (builder *Builder) WithPrice(price pricing.Price) *Builder {
	builder.config.Price = price
	return builder
}

// Build validates and returns the configuration.
func (builder *Builder) Build() (guard.Config, error) {
	if err := builder.config.Validate(); err != nil {
		return guard.Config{}, err
	}
	return builder.config, nil
}
