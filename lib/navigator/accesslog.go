// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package navigator

import (
	"maps"
	"sync"
)

// AccessLog counts the navigation operations one task execution
// performs and the characters they handed back. It keeps aggregates
// only, so its size does not grow with the number of calls.
//
// A nil *AccessLog is valid and records nothing.
type AccessLog struct {
	mu         sync.Mutex
	operations map[string]int
	total      int
	characters int
}

// NewAccessLog returns an empty log.
func NewAccessLog() *AccessLog {
	return &AccessLog{operations: make(map[string]int)}
}

func (log *AccessLog) record(operation string, characters int) {
	if log == nil {
		return
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	log.operations[operation]++
	log.total++
	log.characters += characters
}

// AccessSummary is the reported form of an AccessLog.
type AccessSummary struct {
	TotalOperations    int            `json:"total_operations"`
	OperationsByType   map[string]int `json:"operations_by_type"`
	TotalCharsAccessed int            `json:"total_chars_accessed"`
}

// Summary returns a snapshot of the counters.
func (log *AccessLog) Summary() AccessSummary {
	if log == nil {
		return AccessSummary{OperationsByType: map[string]int{}}
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	return AccessSummary{
		TotalOperations:    log.total,
		OperationsByType:   maps.Clone(log.operations),
		TotalCharsAccessed: log.characters,
	}
}
