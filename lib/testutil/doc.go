// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] wraps the select-with-timeout pattern so tests that
// wait on a run goroutine never call time.After themselves. It is the
// only place tests use a real wall-clock timeout; everything else runs
// on clock.FakeClock.
//
// [UniqueID] generates increasing identifiers for tests that need
// distinct run IDs without reading the clock.
//
// [Logger] returns a slog.Logger that writes through t.Log, so log
// output from a failing test appears next to its failure.
package testutil
