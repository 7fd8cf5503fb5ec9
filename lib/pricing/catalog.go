// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pricing converts model token usage into US-dollar cost.
//
// Prices are expressed per million tokens, the unit providers publish.
// The catalog is a best-effort table as of early 2026; a caller whose
// model is missing (or whose contract rates differ) supplies an explicit
// Price instead.
package pricing

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownModel is returned by Lookup when the catalog has no entry
// for the requested model.
var ErrUnknownModel = errors.New("pricing: unknown model")

// Price is the per-million-token rate for one model.
type Price struct {
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// IsZero reports whether no rate has been set.
func (price Price) IsZero() bool {
	return price.InputPerMillion == 0 && price.OutputPerMillion == 0
}

// Cost returns the dollar cost of the given token counts.
func (price Price) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1e6*price.InputPerMillion +
		float64(outputTokens)/1e6*price.OutputPerMillion
}

// InputCost returns the dollar cost of inputTokens prompt tokens alone.
func (price Price) InputCost(inputTokens int64) float64 {
	return price.Cost(inputTokens, 0)
}

// Model describes one catalog entry.
type Model struct {
	ID            string
	Provider      string
	ContextWindow int
	Price         Price
}

var catalog = []Model{
	// OpenAI.
	{"gpt-4o-mini", "openai", 128_000, Price{0.15, 0.60}},
	{"gpt-4o", "openai", 128_000, Price{2.50, 10.00}},
	{"gpt-4-turbo", "openai", 128_000, Price{10.00, 30.00}},
	{"gpt-4.1", "openai", 1_047_576, Price{2.00, 8.00}},
	{"gpt-4.1-mini", "openai", 1_047_576, Price{0.40, 1.60}},
	{"gpt-4.1-nano", "openai", 1_047_576, Price{0.10, 0.40}},
	{"o3-mini", "openai", 200_000, Price{1.10, 4.40}},

	// Anthropic.
	{"claude-opus-4-6", "anthropic", 200_000, Price{5.00, 25.00}},
	{"claude-sonnet-4-5-20250929", "anthropic", 200_000, Price{3.00, 15.00}},
	{"claude-haiku-4-5-20251001", "anthropic", 200_000, Price{1.00, 5.00}},
	{"claude-3-5-haiku-20241022", "anthropic", 200_000, Price{0.80, 4.00}},
}

// Lookup returns the catalog entry for id. Matching is exact after
// trimming whitespace and lowering case.
func Lookup(id string) (Model, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	for _, model := range catalog {
		if model.ID == normalized {
			return model, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
}

// Models returns a copy of the catalog sorted by provider, then ID.
func Models() []Model {
	models := slices.Clone(catalog)
	slices.SortFunc(models, func(a, b Model) int {
		if a.Provider != b.Provider {
			return strings.Compare(a.Provider, b.Provider)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return models
}
