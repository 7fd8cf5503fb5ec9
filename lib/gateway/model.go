// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/rlm/lib/llm"
)

// Model is the capability the gateway dispatches to: one instruction
// plus one chunk of context in, text and token usage out. An error is a
// transport failure and is fatal to the task.
//
// The ctx passed to Invoke carries the depth of the call being served
// (see DepthFrom). An implementation that itself needs model reasoning
// must go back through a Gateway with that ctx, where the depth ceiling
// rejects it.
type Model interface {
	Invoke(ctx context.Context, prompt, chunk string) (Reply, error)
}

// Reply is a model's answer to one call.
type Reply struct {
	Text  string
	Usage llm.Usage
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, prompt, chunk string) (Reply, error)

// Invoke calls the function.
func (function ModelFunc) Invoke(ctx context.Context, prompt, chunk string) (Reply, error) {
	return function(ctx, prompt, chunk)
}

// DefaultSystemPrompt keeps the model on the supplied chunk.
const DefaultSystemPrompt = "You are a precise reasoning engine. " +
	"Answer ONLY based on the provided context chunk. " +
	"Be concise and factual. " +
	"If the answer cannot be determined from the context, say so explicitly."

// DefaultMaxOutputTokens caps the reply length of a ProviderModel call.
const DefaultMaxOutputTokens = 1000

// ProviderModel adapts an llm.Provider to Model. Each call is a single
// user turn holding the instruction and the chunk, answered at
// temperature zero.
type ProviderModel struct {
	Provider llm.Provider
	Model    string

	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string

	// MaxOutputTokens defaults to DefaultMaxOutputTokens.
	MaxOutputTokens int
}

// Invoke sends one completion request.
func (model *ProviderModel) Invoke(ctx context.Context, prompt, chunk string) (Reply, error) {
	system := model.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	maxTokens := model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}
	temperature := 0.0

	response, err := model.Provider.Complete(ctx, llm.Request{
		Model:  model.Model,
		System: system,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("INSTRUCTION: %s\n\nCONTEXT CHUNK:\n%s", prompt, chunk),
		}},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: response.Text, Usage: response.Usage}, nil
}
