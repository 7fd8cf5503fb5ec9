// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint helper for the rlm binary:
// fatal error reporting to stderr for failures that happen before the
// structured logger exists, and the process exit that follows.
package process
