// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import "context"

type depthKey struct{}

// WithDepth returns a context recording that work under it runs at the
// given call depth.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// DepthFrom returns the call depth recorded in ctx. Task code runs at
// depth 0, which is also the value for a context without one.
func DepthFrom(ctx context.Context) int {
	depth, _ := ctx.Value(depthKey{}).(int)
	return depth
}
