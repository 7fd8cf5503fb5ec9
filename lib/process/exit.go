// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	Exit(os.Stderr, err, 1)
}

// Exit writes "error: err" to w when err is non-nil and exits with
// code.
func Exit(w io.Writer, err error, code int) {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	os.Exit(code)
}
