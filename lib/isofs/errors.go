// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package isofs

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/isomount/isomount/lib/iso9660"
)

// Per-request errors. Each maps to one errno through [Errno]; none of
// them ends the session.
var (
	ErrNotFound     = errors.New("no such entry")
	ErrNotDirectory = errors.New("not a directory")
	ErrIsDirectory  = errors.New("is a directory")
	ErrIO           = errors.New("image read failed")
	ErrBadHandle    = errors.New("unknown or released handle")
	ErrInvalid      = errors.New("invalid argument")
	ErrReadOnly     = errors.New("read-only filesystem")

	// ErrNotMounted is returned by operations invoked outside the
	// Mounted phase.
	ErrNotMounted = errors.New("filesystem is not mounted")
)

// Errno maps an adapter error to the errno returned to the kernel.
// Unrecognized errors become EIO.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, ErrBadHandle):
		return syscall.EBADF
	case errors.Is(err, ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, ErrReadOnly):
		return syscall.EROFS
	default:
		return syscall.EIO
	}
}

// imageError classifies an error from the image layer.
func imageError(path string, err error) error {
	switch {
	case errors.Is(err, iso9660.ErrNotFound):
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case errors.Is(err, iso9660.ErrNotDirectory):
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	default:
		return fmt.Errorf("%s: %w: %w", path, ErrIO, err)
	}
}
