// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package isofs exposes an ISO9660 image as a read-only FUSE
// filesystem.
//
// The [Adapter] holds the per-mount session: the open image, the
// lifecycle [Phase], and tables of open directory and file handles.
// Its operations are path based and independent of FUSE, which keeps
// them testable without /dev/fuse. [Adapter.Root] returns a go-fuse
// node tree whose callbacks delegate to those operations:
//
//   - Lookup and Getattr call [Adapter.GetAttributes]
//   - Readdir calls [Adapter.OpenDirectory] and [Adapter.ReadDirectory],
//     and the returned stream's Close calls [Adapter.ReleaseDirectory]
//   - Open calls [Adapter.OpenFile]; the file handle's Read and Release
//     call [Adapter.Read] and [Adapter.Release]
//   - Statfs on the root reports the image's size
//
// No node implements a write-class callback, so the kernel rejects
// create, unlink, rename, setattr, and extended attributes before
// they reach the adapter. Opening a file for writing fails with EROFS.
//
// Entry permissions are synthesized from the [Session]: the image
// records no ownership or mode bits, so every file gets FileMode and
// every directory DirMode (both narrowed by Umask), and every entry is
// owned by the mounting user.
//
// The adapter is safe for concurrent use. The image is only read
// through positioned reads, and the handle tables are guarded by a
// mutex. Callers must not use a handle concurrently with its release.
package isofs
