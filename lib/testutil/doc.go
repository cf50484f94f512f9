// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireFUSE] skips a test when the machine cannot serve FUSE
// mounts. [RequireReceive] encapsulates the timeout safety valve
// pattern (select with time.After fallback) so that individual tests
// do not need direct time.After calls.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
