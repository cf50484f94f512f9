// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package fusemain is the mount runtime entry point: it takes a
// runtime argument vector and a [Filesystem], mounts it with go-fuse,
// and serves requests until the filesystem is unmounted.
//
// # Arguments
//
// [Main] parses its own argument vector with [ParseArgs]:
//
//	program [-d] [-f] [-s] [-o opt[,opt...]]... mountpoint
//
// -d enables go-fuse request tracing and implies -f. -s serves
// requests on a single goroutine. -o options are passed to the kernel
// mount, except allow_other, which is mapped to the go-fuse option of
// the same meaning.
//
// # Detaching
//
// Without -f or -d the runtime detaches: the calling process re-runs
// its own executable as a session leader with the environment marker
// checked by [IsDaemonChild], sends it a [Handoff] describing the
// resolved mountpoint over an inherited pipe, and waits for the child
// to report a [Ready] message on a second pipe. The parent returns as
// soon as the child reports, so the shell gets its prompt back once
// the mount is live.
//
// A daemon child is not handed anything but the two pipes. It repeats
// the caller's startup (argument parsing, validation), then calls
// [ReceiveHandoff] in place of resolving the mountpoint itself, and
// finally calls Main, which serves in the foreground and reports
// readiness to the parent. A child that fails before reaching Main
// reports with [ReportFailure].
//
// # Exit codes
//
// Main's [Result] carries one of the Exit constants. Result.Detached
// tells the caller that a daemon child took over the session; the
// caller must then leave shutdown work such as mountpoint removal to
// the child.
package fusemain
