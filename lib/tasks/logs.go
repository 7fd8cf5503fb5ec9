// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"maps"
	"slices"

	"github.com/bureau-foundation/rlm/lib/gateway"
	"github.com/bureau-foundation/rlm/lib/task"
)

const (
	errorPattern     = `(error|exception|failed|fatal|critical)`
	maxErrorMatches  = 10
	maxErrorsToClass = 5
)

// LogErrors is the result of FindErrorsInLog.
type LogErrors struct {
	Errors  []LogError      `json:"errors"`
	Summary LogErrorSummary `json:"summary"`
}

// LogError is one classified error line.
type LogError struct {
	Position    int    `json:"position"`
	Line        int    `json:"line"`
	MatchedText string `json:"matched_text"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Message     string `json:"message"`
}

type LogErrorSummary struct {
	TotalMatches int            `json:"total_matches"`
	Analyzed     int            `json:"analyzed"`
	BySeverity   map[string]int `json:"by_severity"`
}

func (report LogErrors) snapshot() LogErrors {
	report.Errors = slices.Clone(report.Errors)
	report.Summary.Analyzed = len(report.Errors)
	report.Summary.BySeverity = maps.Clone(report.Summary.BySeverity)
	return report
}

// FindErrorsInLog classifies the context around the first five error
// keywords by severity and category.
func FindErrorsInLog(ctx context.Context, session *task.Session) (any, error) {
	navigator := session.Navigator()

	matches, err := navigator.Search(errorPattern, maxErrorMatches)
	if err != nil {
		return nil, err
	}
	report := LogErrors{
		Errors: []LogError{},
		Summary: LogErrorSummary{
			TotalMatches: len(matches),
			BySeverity:   map[string]int{},
		},
	}
	session.Checkpoint(report.snapshot())

	type classification struct {
		Severity string `json:"severity"`
		Category string `json:"category"`
		Message  string `json:"message"`
	}
	fallback := classification{Severity: "info", Category: "other", Message: "Unknown error"}

	for _, match := range matches[:min(len(matches), maxErrorsToClass)] {
		reply, err := gateway.InvokeJSONAs(ctx, session.Gateway(),
			`Classify this error. Return JSON: `+
				`{"severity": "critical|warning|info", `+
				`"category": "network|database|auth|validation|other", `+
				`"message": "brief description"}`,
			navigator.Around(match, claimBefore, claimAfter),
			fallback)
		if err != nil {
			return nil, err
		}
		if reply.Severity == "" {
			reply.Severity = fallback.Severity
		}
		report.Errors = append(report.Errors, LogError{
			Position:    match.Start,
			Line:        match.Line,
			MatchedText: match.Text,
			Severity:    reply.Severity,
			Category:    reply.Category,
			Message:     reply.Message,
		})
		report.Summary.BySeverity[reply.Severity]++
		session.Checkpoint(report.snapshot())
	}

	return report.snapshot(), nil
}
