// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the rlm configuration file.
//
// Configuration comes from a single file named by the --config flag or,
// failing that, the RLM_CONFIG environment variable. With neither set,
// [Default] applies. There is no search path and no ~/.config
// discovery. Values in the file are merged over [Default], so a file
// only needs the keys it changes; unknown keys are errors.
//
// Files are YAML. A file named *.json or *.jsonc is read as JSON with
// comments and trailing commas allowed.
//
// Variable expansion is performed on path fields after loading:
// ${VAR} and ${VAR:-default} patterns, with one level of nesting in the
// default. No environment variable overrides a config value directly;
// command-line flags override the guard section.
//
// Key exports:
//
//   - [Config] -- master struct with Guard, Provider, Audit, Log, Script
//   - [Default] -- the built-in configuration
//   - [Load] and [LoadFile] -- the entry points for loading
package config
