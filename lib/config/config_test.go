// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/rlm/lib/codec"
	"github.com/bureau-foundation/rlm/lib/guard"
	"github.com/bureau-foundation/rlm/lib/pricing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultMatchesGuardDefaults(t *testing.T) {
	t.Parallel()

	config := Default()
	budget, err := config.GuardConfig()
	if err != nil {
		t.Fatalf("GuardConfig: %v", err)
	}
	if budget != guard.DefaultConfig() {
		t.Errorf("default guard config = %+v, want %+v", budget, guard.DefaultConfig())
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	t.Setenv("XDG_STATE_HOME", "/state")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Audit.Path != "/state/rlm/audit.db" {
		t.Errorf("audit.path = %q, want /state/rlm/audit.db", config.Audit.Path)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, "rlm.yaml", "guard:\n  max_cost_usd: 2.5\n")
	t.Setenv(EnvironmentVariable, path)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Guard.MaxCostUSD != 2.5 {
		t.Errorf("guard.max_cost_usd = %v, want 2.5", config.Guard.MaxCostUSD)
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "/home/tester")

	path := writeConfig(t, "rlm.yaml", `
guard:
  max_cost_usd: 1.25
  max_runtime: 2m
  model: claude-haiku-4-5-20251001
provider:
  timeout: 10s
audit:
  compression: lz4
  path: ${HOME}/runs.db
log:
  level: debug
  file: ${RLM_LOG_DIR:-/var/log}/rlm.json
script:
  max_steps: 500000
`)
	config, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	budget, err := config.GuardConfig()
	if err != nil {
		t.Fatalf("GuardConfig: %v", err)
	}
	if budget.MaxCost != 1.25 || budget.MaxRuntime != 2*time.Minute || budget.MaxTokensPerSubcall != 4000 {
		t.Errorf("guard config = %+v, want file values over defaults", budget)
	}
	if provider, err := config.ProviderName(budget.Model); err != nil || provider != ProviderAnthropic {
		t.Errorf("ProviderName = %q, %v, want anthropic", provider, err)
	}
	if env := config.APIKeyEnv(ProviderAnthropic); env != "ANTHROPIC_API_KEY" {
		t.Errorf("APIKeyEnv = %q", env)
	}
	if compression, _ := config.Compression(); compression != codec.CompressionLZ4 {
		t.Errorf("compression = %s, want lz4", compression)
	}
	if level, _ := config.LogLevel(); level != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level)
	}
	if config.Audit.Path != "/home/tester/runs.db" {
		t.Errorf("audit.path = %q", config.Audit.Path)
	}
	if config.Log.File != "/var/log/rlm.json" {
		t.Errorf("log.file = %q", config.Log.File)
	}
	if config.Script.MaxSteps != 500000 {
		t.Errorf("script.max_steps = %d", config.Script.MaxSteps)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "rlm.jsonc", `{
	// Cheap exploratory runs.
	"guard": {"max_cost_usd": 0.1, "model": "gpt-4.1-nano",},
	"provider": {"name": "openai", "base_url": "http://localhost:8080"},
}`)
	config, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if config.Guard.MaxCostUSD != 0.1 || config.Guard.Model != "gpt-4.1-nano" {
		t.Errorf("guard = %+v", config.Guard)
	}
	if config.Provider.BaseURL != "http://localhost:8080" {
		t.Errorf("provider.base_url = %q", config.Provider.BaseURL)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "rlm.yaml", "guard:\n  max_cost: 1\n")
	if _, err := LoadFile(path); err == nil {
		t.Errorf("LoadFile accepted an unknown key")
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile error = %v, want ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "negative cost",
			mutate: func(config *Config) { config.Guard.MaxCostUSD = -1 },
			want:   []string{"max_cost"},
		},
		{
			name:   "bad runtime",
			mutate: func(config *Config) { config.Guard.MaxRuntime = "soon" },
			want:   []string{"guard.max_runtime"},
		},
		{
			name:   "unknown model without price",
			mutate: func(config *Config) { config.Guard.Model = "local-llama" },
			want:   []string{"local-llama"},
		},
		{
			name: "every problem at once",
			mutate: func(config *Config) {
				config.Provider.Name = "gemini"
				config.Provider.Timeout = "0s"
				config.Audit.Compression = "gzip"
				config.Log.Level = "loud"
			},
			want: []string{"provider.name", "provider.timeout", "gzip", "log.level"},
		},
		{
			name: "audit without path",
			mutate: func(config *Config) {
				config.Audit.Path = ""
			},
			want: []string{"audit.path"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			config := Default()
			test.mutate(config)
			err := config.Validate()
			if err == nil {
				t.Fatalf("Validate succeeded, want errors mentioning %v", test.want)
			}
			for _, fragment := range test.want {
				if !strings.Contains(err.Error(), fragment) {
					t.Errorf("error %q does not mention %q", err, fragment)
				}
			}
		})
	}
}

func TestUnknownModelWithExplicitPrice(t *testing.T) {
	t.Parallel()

	config := Default()
	config.Guard.Model = "local-llama"
	config.Guard.InputPerMillion = 0.5
	config.Guard.OutputPerMillion = 1
	config.Provider.Name = ProviderOpenAI
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	budget, err := config.GuardConfig()
	if err != nil {
		t.Fatalf("GuardConfig: %v", err)
	}
	if budget.Price != (pricing.Price{InputPerMillion: 0.5, OutputPerMillion: 1}) {
		t.Errorf("price = %+v", budget.Price)
	}
	if _, err := Default().ProviderName("local-llama"); err == nil {
		t.Errorf("ProviderName inferred a provider for an uncataloged model")
	}
}
