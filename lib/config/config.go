// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/rlm/lib/codec"
	"github.com/bureau-foundation/rlm/lib/guard"
	"github.com/bureau-foundation/rlm/lib/pricing"
)

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "RLM_CONFIG"

// Provider names accepted in provider.name.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the complete rlm configuration.
type Config struct {
	// Guard holds the default ceilings for every run. Command-line
	// flags override individual fields.
	Guard GuardConfig `yaml:"guard"`

	// Provider selects and configures the model transport.
	Provider ProviderConfig `yaml:"provider"`

	// Audit configures the run history database.
	Audit AuditConfig `yaml:"audit"`

	Log    LogConfig    `yaml:"log"`
	Script ScriptConfig `yaml:"script"`
}

// GuardConfig mirrors guard.Config in file form.
type GuardConfig struct {
	// MaxCostUSD is the per-run spending ceiling in dollars.
	MaxCostUSD float64 `yaml:"max_cost_usd"`

	// MaxTokensPerSubcall caps the estimated input of one model call.
	MaxTokensPerSubcall int `yaml:"max_tokens_per_subcall"`

	// MaxRuntime is a Go duration string.
	// Default: 60s
	MaxRuntime string `yaml:"max_runtime"`

	// Model is the pricing catalog entry and the model requested from
	// the provider.
	Model string `yaml:"model"`

	// InputPerMillion and OutputPerMillion override the catalog price
	// when both are set. Required for models missing from the catalog.
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// ProviderConfig configures the model transport.
type ProviderConfig struct {
	// Name is "openai" or "anthropic". Empty infers it from the
	// catalog entry of guard.model.
	Name string `yaml:"name"`

	// BaseURL overrides the provider's public endpoint, for proxies
	// and compatible servers.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: OPENAI_API_KEY or ANTHROPIC_API_KEY per provider.
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds one HTTP request. The run's runtime ceiling
	// applies on top of it.
	// Default: 30s
	Timeout string `yaml:"timeout"`

	// SystemPrompt replaces the built-in system prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxOutputTokens caps each reply.
	// Default: 1000
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// AuditConfig configures the run history database.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite file. ${HOME} and ${XDG_STATE_HOME} expand.
	// Default: ${XDG_STATE_HOME:-${HOME}/.local/state}/rlm/audit.db
	Path string `yaml:"path"`

	// Compression is "none", "lz4", or "zstd".
	// Default: zstd
	Compression string `yaml:"compression"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: warn
	Level string `yaml:"level"`

	// File receives a JSON copy of every record when set.
	File string `yaml:"file"`
}

// ScriptConfig configures Starlark script tasks.
type ScriptConfig struct {
	// MaxSteps bounds Starlark execution steps per run. Zero leaves
	// only the runtime ceiling.
	MaxSteps uint64 `yaml:"max_steps"`
}

// Default returns the configuration used when no file is given. Its
// guard section equals guard.DefaultConfig.
func Default() *Config {
	defaults := guard.DefaultConfig()
	return &Config{
		Guard: GuardConfig{
			MaxCostUSD:          defaults.MaxCost,
			MaxTokensPerSubcall: defaults.MaxTokensPerSubcall,
			MaxRuntime:          defaults.MaxRuntime.String(),
			Model:               defaults.Model,
		},
		Provider: ProviderConfig{
			Timeout:         "30s",
			MaxOutputTokens: 1000,
		},
		Audit: AuditConfig{
			Enabled:     true,
			Path:        "${XDG_STATE_HOME:-${HOME}/.local/state}/rlm/audit.db",
			Compression: codec.CompressionZstd.String(),
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load loads the file at path. An empty path falls back to the
// RLM_CONFIG environment variable, and when that is unset too, to
// Default with variables expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		config := Default()
		config.expandVariables()
		return config, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults. Files named
// .json or .jsonc may carry comments and trailing commas; anything else
// is parsed as YAML.
func LoadFile(path string) (*Config, error) {
	config := Default()
	if err := config.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	config.expandVariables()
	return config, nil
}

func (config *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// varPattern matches ${VAR} and ${VAR:-default}. The default may itself
// hold one nested ${VAR}.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^{}]|\$\{[^{}]*\})*))?\}`)

func (config *Config) expandVariables() {
	config.Audit.Path = expandVars(config.Audit.Path)
	config.Log.File = expandVars(config.Log.File)
}

func expandVars(text string) string {
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return expandVars(parts[2])
	})
}

// GuardConfig converts the guard section.
func (config *Config) GuardConfig() (guard.Config, error) {
	runtime, err := time.ParseDuration(config.Guard.MaxRuntime)
	if err != nil {
		return guard.Config{}, fmt.Errorf("config: guard.max_runtime: %w", err)
	}
	return guard.Config{
		MaxCost:             config.Guard.MaxCostUSD,
		MaxTokensPerSubcall: config.Guard.MaxTokensPerSubcall,
		MaxDepth:            guard.MaxDepth,
		MaxRuntime:          runtime,
		Model:               config.Guard.Model,
		Price: pricing.Price{
			InputPerMillion:  config.Guard.InputPerMillion,
			OutputPerMillion: config.Guard.OutputPerMillion,
		},
	}, nil
}

// ProviderName returns the configured provider, or the catalog
// provider of model when none is configured.
func (config *Config) ProviderName(model string) (string, error) {
	if config.Provider.Name != "" {
		return config.Provider.Name, nil
	}
	entry, err := pricing.Lookup(model)
	if err != nil {
		return "", fmt.Errorf("config: cannot infer the provider of %q; set provider.name: %w", model, err)
	}
	return entry.Provider, nil
}

// APIKeyEnv returns the environment variable holding the key for
// provider.
func (config *Config) APIKeyEnv(provider string) string {
	if config.Provider.APIKeyEnv != "" {
		return config.Provider.APIKeyEnv
	}
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// ProviderTimeout parses provider.timeout.
func (config *Config) ProviderTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(config.Provider.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: provider.timeout: %w", err)
	}
	return timeout, nil
}

// Compression parses audit.compression.
func (config *Config) Compression() (codec.Compression, error) {
	return codec.ParseCompression(config.Audit.Compression)
}

// LogLevel parses log.level.
func (config *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

// Validate checks the configuration and reports every problem at once.
func (config *Config) Validate() error {
	var errs []error

	if budget, err := config.GuardConfig(); err != nil {
		errs = append(errs, err)
	} else if err := budget.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch config.Provider.Name {
	case "", ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("config: provider.name must be %q or %q, got %q",
			ProviderOpenAI, ProviderAnthropic, config.Provider.Name))
	}
	if timeout, err := config.ProviderTimeout(); err != nil {
		errs = append(errs, err)
	} else if timeout <= 0 {
		errs = append(errs, fmt.Errorf("config: provider.timeout must be positive, got %s", timeout))
	}
	if config.Provider.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("config: provider.max_output_tokens must be positive, got %d", config.Provider.MaxOutputTokens))
	}

	if _, err := config.Compression(); err != nil {
		errs = append(errs, err)
	}
	if config.Audit.Enabled && config.Audit.Path == "" {
		errs = append(errs, errors.New("config: audit.path is required when audit is enabled"))
	}

	if _, err := config.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
