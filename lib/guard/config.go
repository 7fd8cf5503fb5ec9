// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/rlm/lib/pricing"
)

// MaxDepth is the only supported call depth. Tasks run at depth 0 and
// every model call runs at depth 1; nothing may call deeper.
const MaxDepth = 1

// DefaultModel is the model used when a configuration names none.
const DefaultModel = "gpt-4o-mini"

// ErrInvalidConfig wraps every validation failure from Config.Validate.
var ErrInvalidConfig = errors.New("guard: invalid config")

// Config holds the ceilings for one task execution. It is a plain value:
// the Guard copies it at construction and never modifies it.
type Config struct {
	// MaxCost is the spending ceiling in US dollars.
	MaxCost float64

	// MaxTokensPerSubcall caps the estimated input size of any single
	// model call. It is a per-call ceiling, not a cumulative one.
	MaxTokensPerSubcall int

	// MaxDepth must equal the package constant MaxDepth.
	MaxDepth int

	// MaxRuntime is the wall-clock ceiling measured from Guard creation.
	MaxRuntime time.Duration

	// Model selects the pricing catalog entry when Price is zero.
	Model string

	// Price overrides the catalog rate for Model.
	Price pricing.Price
}

// DefaultConfig returns conservative ceilings suitable for exploratory
// runs: 50 cents, 4000 tokens per call, one minute.
func DefaultConfig() Config {
	return Config{
		MaxCost:             0.50,
		MaxTokensPerSubcall: 4000,
		MaxDepth:            MaxDepth,
		MaxRuntime:          60 * time.Second,
		Model:               DefaultModel,
	}
}

// Validate reports every problem with the configuration at once.
func (config Config) Validate() error {
	var problems []error
	if !(config.MaxCost > 0) {
		problems = append(problems, fmt.Errorf("max_cost must be positive, got %v", config.MaxCost))
	}
	if config.MaxTokensPerSubcall <= 0 {
		problems = append(problems, fmt.Errorf("max_tokens_per_subcall must be positive, got %d", config.MaxTokensPerSubcall))
	}
	if config.MaxDepth != MaxDepth {
		problems = append(problems, fmt.Errorf("max_depth must be %d, got %d", MaxDepth, config.MaxDepth))
	}
	if config.MaxRuntime <= 0 {
		problems = append(problems, fmt.Errorf("max_runtime must be positive, got %s", config.MaxRuntime))
	}
	if config.Price.InputPerMillion < 0 || config.Price.OutputPerMillion < 0 {
		problems = append(problems, fmt.Errorf("price must not be negative, got %+v", config.Price))
	}
	if _, err := config.ResolvePrice(); err != nil {
		problems = append(problems, err)
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}

// ResolvePrice returns the explicit Price if set, otherwise the catalog
// rate for Model.
func (config Config) ResolvePrice() (pricing.Price, error) {
	if !config.Price.IsZero() {
		return config.Price, nil
	}
	if config.Model == "" {
		return pricing.Price{}, errors.New("model is required when no explicit price is set")
	}
	model, err := pricing.Lookup(config.Model)
	if err != nil {
		return pricing.Price{}, fmt.Errorf("no explicit price and %w", err)
	}
	return model.Price, nil
}
