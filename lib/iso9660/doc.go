// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package iso9660 reads the directory structure and block data of an
// ISO9660 image without extracting it.
//
// An [Image] is opened from a path (or any [io.ReaderAt]) and is safe
// for concurrent use once open: every operation is a positioned read
// against the underlying container, so no cursor state is shared
// between callers.
//
// # Layout
//
// The first 16 logical blocks are the system area and are ignored.
// Volume descriptors follow, one per block, until the set terminator.
// Only the primary volume descriptor is used; its root directory
// record anchors the tree. Each directory's extent is a sequence of
// variable-length directory records that never straddle a block
// boundary: a zero length byte means the rest of the block is padding.
//
// # Names
//
// Identifiers are presented the way mounted CD-ROMs traditionally show
// them: the ";N" version suffix and a trailing "." are removed and the
// result is lowercased, so "README.TXT;1" is listed as "readme.txt".
// [Image.Stat] accepts either the translated name or the raw
// identifier for each path component.
//
// # Multi-extent files
//
// A file of 4 GiB or more is recorded as several directory records
// with the same identifier, one per section. They are listed as one
// entry whose size is the sum of the sections, provided each section
// starts where the previous one ends. The entry stops at the first
// section that does not, since reads assume one run of blocks.
//
// Extensions (Joliet, Rock Ridge) are not interpreted; such images
// still mount, using the primary names.
package iso9660
