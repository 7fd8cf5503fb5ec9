// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"sync"
	"unicode/utf8"
)

// TokenEstimator predicts the input size of a call before it is
// dispatched, for the per-call token ceiling and the cost pre-flight.
type TokenEstimator interface {
	EstimateTokens(prompt, chunk string) int

	// RecordUsage reports the provider's real input count for a call
	// the estimator previously sized.
	RecordUsage(prompt, chunk string, actualInputTokens int64)
}

// defaultCharactersPerToken overestimates for English prose and code;
// BPE tokenizers average 3.5 to 4.5 characters per token.
const defaultCharactersPerToken = 4.0

// smoothingFactor weights each new observation at 30% against the
// running ratio.
const smoothingFactor = 0.3

// CharEstimator sizes text by character count. The prompt and the chunk
// are each estimated separately with a floor of one token.
//
// A fixed estimator (NewCharEstimator) always uses four characters per
// token, which makes admission decisions reproducible. A calibrating
// estimator (NewCalibratingEstimator) replaces the ratio with the first
// observed one and then follows later observations by exponential
// moving average.
type CharEstimator struct {
	calibrate bool

	mu                 sync.Mutex
	charactersPerToken float64
	observations       int
}

// NewCharEstimator returns a fixed four-characters-per-token estimator.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{charactersPerToken: defaultCharactersPerToken}
}

// NewCalibratingEstimator returns an estimator that learns its ratio
// from reported usage.
func NewCalibratingEstimator() *CharEstimator {
	return &CharEstimator{charactersPerToken: defaultCharactersPerToken, calibrate: true}
}

// EstimateTokens returns the estimate for prompt plus chunk.
func (estimator *CharEstimator) EstimateTokens(prompt, chunk string) int {
	estimator.mu.Lock()
	ratio := estimator.charactersPerToken
	estimator.mu.Unlock()

	return partTokens(prompt, ratio) + partTokens(chunk, ratio)
}

func partTokens(text string, ratio float64) int {
	return max(1, int(float64(utf8.RuneCountInString(text))/ratio))
}

// RecordUsage updates the ratio when calibration is enabled.
func (estimator *CharEstimator) RecordUsage(prompt, chunk string, actualInputTokens int64) {
	if !estimator.calibrate || actualInputTokens <= 0 {
		return
	}
	characters := utf8.RuneCountInString(prompt) + utf8.RuneCountInString(chunk)
	if characters == 0 {
		return
	}
	observed := float64(characters) / float64(actualInputTokens)

	estimator.mu.Lock()
	defer estimator.mu.Unlock()
	estimator.observations++
	if estimator.observations == 1 {
		estimator.charactersPerToken = observed
		return
	}
	estimator.charactersPerToken = smoothingFactor*observed +
		(1-smoothingFactor)*estimator.charactersPerToken
}
