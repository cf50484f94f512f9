// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry their own exit status.
type ExitCoder interface {
	ExitCode() int
}

// Code returns the exit status for err and writes the message for
// errors that do not carry a status to stderr.
func Code(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

// Exit terminates the process with the status Code assigns to err.
func Exit(err error) {
	os.Exit(Code(err, os.Stderr))
}
