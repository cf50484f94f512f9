// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for messages between
// isomount processes.
//
// When the mount runtime detaches, the foreground process and the
// daemon it starts exchange two messages over inherited pipes: the
// mountpoint handoff and the readiness report. Both are encoded with
// Core Deterministic Encoding (RFC 8949 §4.2), so the same message
// always produces the same bytes.
//
//	encoder := codec.NewEncoder(pipe)
//	decoder := codec.NewDecoder(pipe)
//
// Message types carry `cbor` struct tags. Unknown fields are ignored
// on decode, so a newer daemon can read an older parent's handoff.
package codec
