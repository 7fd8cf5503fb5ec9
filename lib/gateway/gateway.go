// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the only path from task code to a language model.
//
// Every call goes through the same sequence: runtime and depth checks,
// a token-size pre-flight, dispatch, cost admission, and an audit
// record. Budget errors from the guard package come back unchanged and
// are fatal to the task; nothing here retries.
//
// The structured variants (InvokeJSON, InvokeBool, InvokeChoice) add
// format instructions to the prompt and coerce the reply. When the reply
// cannot be coerced they return the caller's default, since model output
// is never guaranteed to be well formed.
package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/rlm/lib/clock"
	"github.com/bureau-foundation/rlm/lib/guard"
	"github.com/bureau-foundation/rlm/lib/llm"
)

// ErrEmptyPrompt is returned for a blank instruction. It is a task bug,
// not a budget event.
var ErrEmptyPrompt = errors.New("gateway: prompt must not be empty")

// TransportError wraps a failure from the Model. The harness reports it
// as a task error, not a partial result.
type TransportError struct {
	Err error
}

func (err *TransportError) Error() string {
	return fmt.Sprintf("gateway: model call failed: %v", err.Err)
}

func (err *TransportError) Unwrap() error { return err.Err }

// Outcome classifies a dispatched call in its SubcallRecord.
type Outcome string

const (
	OutcomePending        Outcome = "pending"
	OutcomeOK             Outcome = "ok"
	OutcomeCostViolation  Outcome = "cost_violation"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeInterrupted    Outcome = "interrupted"
)

// SubcallRecord is the audit entry for one dispatched call. The chunk
// itself is not retained; its keyed BLAKE3 digest and character length
// identify it against the context.
type SubcallRecord struct {
	Sequence        int           `json:"sequence"`
	Depth           int           `json:"depth"`
	Prompt          string        `json:"prompt"`
	ChunkHash       string        `json:"chunk_hash"`
	ChunkLength     int           `json:"chunk_length"`
	Response        string        `json:"response"`
	EstimatedTokens int           `json:"estimated_tokens"`
	Usage           llm.Usage     `json:"usage"`
	UsageEstimated  bool          `json:"usage_estimated,omitempty"`
	CostUSD         float64       `json:"cost_usd"`
	Outcome         Outcome       `json:"outcome"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
}

// Config wires a Gateway to its collaborators.
type Config struct {
	// Guard and Model are required.
	Guard *guard.Guard
	Model Model

	// Estimator defaults to NewCharEstimator().
	Estimator TokenEstimator

	// Clock stamps records. Defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Gateway dispatches model calls for one task execution. It is safe for
// concurrent use; records keep the order in which calls passed their
// pre-flight checks.
type Gateway struct {
	guard     *guard.Guard
	model     Model
	estimator TokenEstimator
	clock     clock.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	records []SubcallRecord
}

// New returns a Gateway bound to config.Guard.
func New(config Config) (*Gateway, error) {
	if config.Guard == nil {
		return nil, errors.New("gateway: guard is required")
	}
	if config.Model == nil {
		return nil, errors.New("gateway: model is required")
	}
	if config.Estimator == nil {
		config.Estimator = NewCharEstimator()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{
		guard:     config.Guard,
		model:     config.Model,
		estimator: config.Estimator,
		clock:     config.Clock,
		logger:    config.Logger,
	}, nil
}

// Invoke sends prompt and chunk to the model and returns its raw text.
//
// The depth of the caller is read from ctx (task code runs at depth 0)
// and the model is called with ctx at depth+1. Runtime, depth, token,
// and affordability checks all run before dispatch, so a rejected call
// never reaches the model. If the reply costs more than the remaining
// budget the spend is still counted, the call is recorded with
// OutcomeCostViolation, the cost error is returned, and every later
// call is refused.
func (gateway *Gateway) Invoke(ctx context.Context, prompt, chunk string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if ctx.Err() != nil {
		return "", context.Cause(ctx)
	}

	depth := DepthFrom(ctx)
	estimated := gateway.estimator.EstimateTokens(prompt, chunk)
	if err := gateway.preflight(depth, estimated); err != nil {
		gateway.logger.Warn("subcall rejected",
			"depth", depth,
			"estimated_tokens", estimated,
			"error", err,
		)
		return "", err
	}

	record := SubcallRecord{
		Depth:           depth + 1,
		Prompt:          prompt,
		ChunkHash:       hashChunk(chunk),
		ChunkLength:     utf8.RuneCountInString(chunk),
		EstimatedTokens: estimated,
		Outcome:         OutcomePending,
		StartedAt:       gateway.clock.Now(),
	}
	record.Sequence = gateway.reserve(record)

	reply, err := gateway.model.Invoke(WithDepth(ctx, depth+1), prompt, chunk)
	record.Duration = gateway.clock.Now().Sub(record.StartedAt)
	if err != nil {
		return "", gateway.failed(ctx, record, err)
	}

	record.Response = reply.Text
	record.Usage = reply.Usage
	if reply.Usage == (llm.Usage{}) {
		record.Usage = llm.Usage{
			InputTokens:  int64(estimated),
			OutputTokens: int64(partTokens(reply.Text, defaultCharactersPerToken)),
		}
		record.UsageEstimated = true
	} else {
		gateway.estimator.RecordUsage(prompt, chunk, reply.Usage.InputTokens)
	}
	gateway.guard.RecordCall(record.Usage.InputTokens, record.Usage.OutputTokens)

	record.CostUSD = gateway.guard.Price().Cost(record.Usage.InputTokens, record.Usage.OutputTokens)
	if err := gateway.guard.AdmitCost(record.CostUSD); err != nil {
		gateway.guard.ChargeOverage(record.CostUSD)
		record.Outcome = OutcomeCostViolation
		record.Error = err.Error()
		gateway.complete(record)
		gateway.logger.Warn("subcall exceeded cost budget",
			"sequence", record.Sequence,
			"cost_usd", record.CostUSD,
			"error", err,
		)
		return "", err
	}

	record.Outcome = OutcomeOK
	gateway.complete(record)
	gateway.logger.Debug("subcall completed",
		"sequence", record.Sequence,
		"input_tokens", record.Usage.InputTokens,
		"output_tokens", record.Usage.OutputTokens,
		"cost_usd", record.CostUSD,
		"duration", record.Duration,
	)
	return reply.Text, nil
}

// InvokeText is Invoke under the name the structured variants share.
func (gateway *Gateway) InvokeText(ctx context.Context, prompt, chunk string) (string, error) {
	return gateway.Invoke(ctx, prompt, chunk)
}

func (gateway *Gateway) preflight(depth, estimated int) error {
	if err := gateway.guard.AdmitRuntime(); err != nil {
		return err
	}
	if err := gateway.guard.AdmitDepth(depth); err != nil {
		return err
	}
	if err := gateway.guard.AdmitTokens(estimated); err != nil {
		return err
	}
	return gateway.guard.CheckCost(gateway.guard.Price().InputCost(int64(estimated)))
}

// failed records a dispatch error and decides what the task sees. A
// budget error raised inside the model (a nested gateway call) and a
// runtime cancellation of ctx both surface as the budget error; anything
// else is a TransportError.
func (gateway *Gateway) failed(ctx context.Context, record SubcallRecord, err error) error {
	record.Error = err.Error()
	result := error(&TransportError{Err: err})
	record.Outcome = OutcomeTransportError

	if _, isLimit := guard.AsLimitError(err); isLimit {
		result = err
		record.Outcome = OutcomeInterrupted
	} else if ctx.Err() != nil {
		if _, isLimit := guard.AsLimitError(context.Cause(ctx)); isLimit {
			result = context.Cause(ctx)
			record.Outcome = OutcomeInterrupted
		}
	}

	gateway.complete(record)
	gateway.logger.Warn("subcall failed",
		"sequence", record.Sequence,
		"outcome", record.Outcome,
		"error", err,
	)
	return result
}

func (gateway *Gateway) reserve(record SubcallRecord) int {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	record.Sequence = len(gateway.records)
	gateway.records = append(gateway.records, record)
	return record.Sequence
}

func (gateway *Gateway) complete(record SubcallRecord) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.records[record.Sequence] = record
}

// Records returns a copy of the audit trail in issue order.
func (gateway *Gateway) Records() []SubcallRecord {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return slices.Clone(gateway.records)
}

// chunkDomainKey separates chunk fingerprints from any other BLAKE3 use.
var chunkDomainKey = [32]byte{
	'r', 'l', 'm', '.', 's', 'u', 'b', 'c', 'a', 'l', 'l', '.',
	'c', 'h', 'u', 'n', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func hashChunk(chunk string) string {
	hasher, err := blake3.NewKeyed(chunkDomainKey[:])
	if err != nil {
		panic("gateway: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(chunk))
	return hex.EncodeToString(hasher.Sum(nil))
}
