// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm is the HTTP transport for model calls: a provider-agnostic
// [Provider] interface with OpenAI-compatible and Anthropic
// implementations.
//
// Only blocking text completion is supported. Requests go through a
// caller-supplied [http.Client], so timeouts, proxies, and TLS belong to
// the caller. The package never retries: a non-200 response becomes a
// [ProviderError] and is returned as-is.
package llm
