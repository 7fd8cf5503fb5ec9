// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
	"github.com/bureau-foundation/rlm/lib/task"
)

// writeRunSummary prints one styled line describing a finished run.
func writeRunSummary(w io.Writer, result *task.Result) {
	styles := cli.NewStyles(w, cli.DefaultTheme)
	budget := result.BudgetSummary

	parts := []string{
		styles.Status(string(result.Status)),
		styles.Faint.Render("run " + shortID(result.RunID)),
		fmt.Sprintf("$%.4f of $%.2f", budget.TotalCostUSD, budget.CostBudgetUSD),
		fmt.Sprintf("%d calls", budget.TotalCalls),
		formatSeconds(budget.ElapsedSeconds),
	}
	if result.Limit != "" {
		parts = append(parts, styles.Label.Render("limit: "+result.Limit))
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
	if result.Error != "" {
		fmt.Fprintln(w, styles.Faint.Render(result.Error))
	}
}

// shortID is the first segment of a run UUID, enough to address it in
// rlm history show.
func shortID(id string) string {
	if index := strings.IndexByte(id, '-'); index > 0 {
		return id[:index]
	}
	return id
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Millisecond).String()
}
