// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountpoint decides where an image is mounted and whether the
// mount owns that directory.
//
// [Resolve] picks the path: the explicit mountpoint if one was given,
// otherwise the image's base name under the base directory. [Check]
// classifies it:
//
//   - Unmanaged: an existing, writable directory that is not already
//     a mount point. Used as is and never removed.
//   - Managed: the directory did not exist and was created because
//     management was requested. Removed at shutdown.
//   - Unavailable: anything else. The mount must not proceed.
//
// An existing directory that is already a mount point is Unavailable
// even though it is writable. Two images with the same base name would
// otherwise be mounted on top of each other, and the second session
// would adopt a directory belonging to the first.
//
// [ShouldRemove] is the shutdown policy for owned mountpoints across
// the daemon boundary, and [Remove] performs the removal.
package mountpoint
