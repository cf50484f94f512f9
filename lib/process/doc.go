// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package process turns the error returned by a binary's run function
// into its exit status. It is one of two packages (the other is
// lib/version) that write to stderr without the structured logger,
// because the logger may not exist yet when the error occurs.
//
// An error that implements ExitCode() int chooses its own status and
// is assumed to have been reported already. Any other non-nil error is
// printed as "error: <message>" and exits 1.
package process
