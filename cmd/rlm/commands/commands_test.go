// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/rlm/cmd/rlm/cli"
)

const report = `Quarterly Report

Abstract
This report covers the quarter.

Results
Revenue grew significantly this quarter.

Conclusion
We conclude growth continues.
`

// fixture is a workspace with a config file pointing at a fake
// OpenAI-compatible server and a private audit database.
type fixture struct {
	dir         string
	configPath  string
	environment *Environment
	stdout      *bytes.Buffer
	stderr      *bytes.Buffer
	requests    *atomic.Int64
}

// newFixture starts a server that answers every chat completion with
// reply, reporting promptTokens/completionTokens of usage.
func newFixture(t *testing.T, reply string, promptTokens, completionTokens int, guardSection string) *fixture {
	t.Helper()

	requests := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"chatcmpl-1","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":%d,"completion_tokens":%d}}`,
			reply, promptTokens, completionTokens)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "rlm.yaml")
	configText := fmt.Sprintf(`
%s
provider:
  name: openai
  base_url: %s
  api_key_env: RLM_TEST_KEY
audit:
  path: %s
log:
  level: error
`, guardSection, server.URL, filepath.Join(dir, "state", "audit.db"))
	writeFile(t, configPath, configText)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &fixture{
		dir:        dir,
		configPath: configPath,
		environment: &Environment{
			Stdout: stdout,
			Stderr: stderr,
			Getenv: func(name string) string {
				if name == "RLM_TEST_KEY" {
					return "test-key"
				}
				return ""
			},
			HTTPClient: server.Client(),
		},
		stdout:   stdout,
		stderr:   stderr,
		requests: requests,
	}
}

func (fixture *fixture) execute(t *testing.T, args ...string) error {
	t.Helper()
	fixture.stdout.Reset()
	fixture.stderr.Reset()
	if args[0] == "run" || args[0] == "history" {
		args = append(args, "--config", fixture.configPath)
	}
	return Root(fixture.environment).Execute(context.Background(), args)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func exitCode(err error) int {
	var exitError *cli.ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	if err != nil {
		return -1
	}
	return 0
}

func decodeEnvelope(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("stdout is not a JSON envelope: %v\n%s", err, data)
	}
	return envelope
}

func TestRunCompletedAndRecorded(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, "report", 100, 20, "")
	contextPath := filepath.Join(fixture.dir, "report.txt")
	writeFile(t, contextPath, report)

	if err := fixture.execute(t, "run", contextPath, "--compact", "--quiet"); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, fixture.stderr)
	}
	if lines := strings.Count(strings.TrimSpace(fixture.stdout.String()), "\n"); lines != 0 {
		t.Errorf("--compact printed %d extra lines", lines)
	}
	envelope := decodeEnvelope(t, fixture.stdout.Bytes())
	if envelope["status"] != "completed" || envelope["task"] != "analyze_document" {
		t.Fatalf("envelope = %v, want a completed analyze_document run", envelope)
	}
	result, ok := envelope["result"].(map[string]any)
	if !ok || result["analysis"] == nil {
		t.Errorf("result = %v, want the document analysis", envelope["result"])
	}
	calls := envelope["budget_summary"].(map[string]any)["total_calls"].(float64)
	if int64(calls) != fixture.requests.Load() {
		t.Errorf("total_calls = %v, server saw %d requests", calls, fixture.requests.Load())
	}
	runID := envelope["run_id"].(string)

	if err := fixture.execute(t, "history", "--json"); err != nil {
		t.Fatalf("history: %v", err)
	}
	var runs []map[string]any
	if err := json.Unmarshal(fixture.stdout.Bytes(), &runs); err != nil {
		t.Fatalf("history output: %v", err)
	}
	if len(runs) != 1 || runs[0]["run_id"] != runID {
		t.Fatalf("history = %v, want the one run %s", runs, runID)
	}

	if err := fixture.execute(t, "history", "show", runID[:8], "--json"); err != nil {
		t.Fatalf("history show: %v", err)
	}
	shown := decodeEnvelope(t, fixture.stdout.Bytes())
	subcalls, _ := shown["subcalls"].([]any)
	if shown["run_id"] != runID || float64(len(subcalls)) != calls {
		t.Errorf("history show = run %v with %d subcalls, want %s with %v", shown["run_id"], len(subcalls), runID, calls)
	}

	if err := fixture.execute(t, "history", "show", runID, "--responses"); err != nil {
		t.Fatalf("history show text: %v", err)
	}
	for _, want := range []string{runID, "analyze_document", "Model calls", "--- response 0"} {
		if !strings.Contains(fixture.stdout.String(), want) {
			t.Errorf("history show output missing %q:\n%s", want, fixture.stdout)
		}
	}
}

func TestRunPartialExitsTwo(t *testing.T) {
	t.Parallel()

	// Each call costs 100k*0.15/M + 100k*0.60/M = $0.075.
	fixture := newFixture(t, "report", 100_000, 100_000, "guard:\n  max_cost_usd: 0.1\n")
	contextPath := filepath.Join(fixture.dir, "report.txt")
	writeFile(t, contextPath, report)

	err := fixture.execute(t, "run", contextPath)
	if code := exitCode(err); code != exitPartial {
		t.Fatalf("exit code = %d (error %v), want %d", code, err, exitPartial)
	}
	envelope := decodeEnvelope(t, fixture.stdout.Bytes())
	if envelope["status"] != "partial" || envelope["limit"] != "cost" {
		t.Errorf("envelope status %v limit %v, want partial cost", envelope["status"], envelope["limit"])
	}
	if _, ok := envelope["result"]; !ok {
		t.Errorf("partial envelope has no result key")
	}
	if !strings.Contains(fixture.stderr.String(), "partial") {
		t.Errorf("summary line missing from stderr: %q", fixture.stderr)
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, "report", 100_000, 100_000, "guard:\n  max_cost_usd: 0.1\n")
	contextPath := filepath.Join(fixture.dir, "report.txt")
	writeFile(t, contextPath, report)

	if err := fixture.execute(t, "run", contextPath, "--cost", "5", "--timeout", "30", "--no-audit", "-q"); err != nil {
		t.Fatalf("run: %v", err)
	}
	envelope := decodeEnvelope(t, fixture.stdout.Bytes())
	summary := envelope["budget_summary"].(map[string]any)
	if summary["cost_budget_usd"] != 5.0 || summary["runtime_limit_seconds"] != 30.0 {
		t.Errorf("budget summary = %v, want the flag values", summary)
	}
	if _, err := os.Stat(filepath.Join(fixture.dir, "state", "audit.db")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("--no-audit still created the audit database (stat error %v)", err)
	}
}

func TestRunScript(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, "yes", 10, 1, "")
	contextPath := filepath.Join(fixture.dir, "app.log")
	writeFile(t, contextPath, "start\nERROR disk full\nok\n")
	scriptPath := filepath.Join(fixture.dir, "errors.star")
	writeFile(t, scriptPath, `
def task(context):
    hits = context_search("error")
    return {
        "errors": [hit.line for hit in hits],
        "serious": semantic_subcall_bool("Is this serious?", context_around(hits[0])),
    }
`)

	if err := fixture.execute(t, "run", contextPath, "--script", scriptPath, "-q"); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, fixture.stderr)
	}
	envelope := decodeEnvelope(t, fixture.stdout.Bytes())
	want := map[string]any{"errors": []any{2.0}, "serious": true}
	if fmt.Sprint(envelope["result"]) != fmt.Sprint(want) {
		t.Errorf("result = %v, want %v", envelope["result"], want)
	}
}

func TestRunErrorExitsOne(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, "report", 10, 1, "")
	contextPath := filepath.Join(fixture.dir, "broken.txt")
	writeFile(t, contextPath, "some text\n")
	scriptPath := filepath.Join(fixture.dir, "broken.star")
	writeFile(t, scriptPath, "def task(context):\n    fail(\"cannot continue\")\n")

	err := fixture.execute(t, "run", contextPath, "--script", scriptPath, "-q")
	if code := exitCode(err); code != exitError {
		t.Fatalf("exit code = %d (error %v), want %d", code, err, exitError)
	}
	envelope := decodeEnvelope(t, fixture.stdout.Bytes())
	if _, ok := envelope["result"]; ok || !strings.Contains(envelope["error"].(string), "cannot continue") {
		t.Errorf("envelope = %v, want an error without a result", envelope)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, "report", 10, 1, "")
	blank := filepath.Join(fixture.dir, "blank.txt")
	writeFile(t, blank, "  \n\t\n")
	contextPath := filepath.Join(fixture.dir, "report.txt")
	writeFile(t, contextPath, report)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing file", args: []string{"run", filepath.Join(fixture.dir, "absent.txt")}, want: "context file not found"},
		{name: "blank file", args: []string{"run", blank}, want: "context file is empty"},
		{name: "no file", args: []string{"run"}, want: "exactly one context file"},
		{name: "unknown task", args: []string{"run", contextPath, "--task", "summarize"}, want: "unknown task"},
		{name: "negative cost", args: []string{"run", contextPath, "--cost", "-1"}, want: "max_cost"},
		{name: "bad timeout", args: []string{"run", contextPath, "--timeout", "soon"}, want: "invalid --timeout"},
		{name: "task and script", args: []string{"run", contextPath, "--task", "extract_entities", "--script", "x.star"}, want: "mutually exclusive"},
		{name: "uncataloged model", args: []string{"run", contextPath, "--model", "local-llama"}, want: "local-llama"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := fixture.execute(t, test.args...)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %v, want it to contain %q", err, test.want)
			}
		})
	}
	if fixture.requests.Load() != 0 {
		t.Errorf("rejected runs sent %d model requests", fixture.requests.Load())
	}
}

func TestRunRequiresAPIKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	contextPath := filepath.Join(dir, "report.txt")
	writeFile(t, contextPath, report)
	configPath := filepath.Join(dir, "rlm.yaml")
	writeFile(t, configPath, "audit:\n  enabled: false\n")

	environment := &Environment{
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
		Getenv: func(string) string { return "" },
	}
	err := Root(environment).Execute(context.Background(), []string{"run", contextPath, "--config", configPath})
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error = %v, want a missing OPENAI_API_KEY error", err)
	}
}

func TestListingCommands(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, "unused", 1, 1, "")
	tests := []struct {
		args []string
		want []string
	}{
		{args: []string{"tasks"}, want: []string{"analyze_document", "(default)", "find_errors_in_log", "extract_entities"}},
		{args: []string{"models", "--provider", "anthropic"}, want: []string{"claude-haiku-4-5-20251001", "INPUT $/M"}},
		{args: []string{"version"}, want: []string{"rlm ", "Go:"}},
		{args: []string{"history"}, want: []string{"no recorded runs"}},
	}
	for _, test := range tests {
		if err := fixture.execute(t, test.args...); err != nil {
			t.Fatalf("%v: %v", test.args, err)
		}
		for _, want := range test.want {
			if !strings.Contains(fixture.stdout.String(), want) {
				t.Errorf("%v output missing %q:\n%s", test.args, want, fixture.stdout)
			}
		}
	}
	if err := fixture.execute(t, "models", "--provider", "anthropic", "--json"); err != nil {
		t.Fatalf("models --json: %v", err)
	}
	if strings.Contains(fixture.stdout.String(), "gpt-4o") {
		t.Errorf("provider filter leaked openai models: %s", fixture.stdout)
	}
}

func TestHistoryPrune(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, "report", 10, 1, "")
	contextPath := filepath.Join(fixture.dir, "report.txt")
	writeFile(t, contextPath, report)
	if err := fixture.execute(t, "run", contextPath, "-q"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := fixture.execute(t, "history", "prune", "--older-than", "1h"); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(fixture.stdout.String(), "deleted 0 runs") {
		t.Errorf("prune output = %q, want nothing deleted", fixture.stdout)
	}

	time.Sleep(5 * time.Millisecond)
	if err := fixture.execute(t, "history", "prune", "--older-than", "1ms"); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(fixture.stdout.String(), "deleted 1 runs") {
		t.Errorf("prune output = %q, want one run deleted", fixture.stdout)
	}
}

func TestParseTimeout(t *testing.T) {
	t.Parallel()

	tests := map[string]time.Duration{
		"30":    30 * time.Second,
		"2.5":   2500 * time.Millisecond,
		"90s":   90 * time.Second,
		"1m30s": 90 * time.Second,
	}
	for text, want := range tests {
		got, err := parseTimeout(text)
		if err != nil || got != want {
			t.Errorf("parseTimeout(%q) = %v, %v, want %v", text, got, err, want)
		}
	}
}
