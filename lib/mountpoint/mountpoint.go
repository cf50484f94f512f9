// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package mountpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"github.com/isomount/isomount/lib/isofs"
)

// Status classifies a resolved mountpoint.
type Status int

const (
	Unavailable Status = iota
	Managed
	Unmanaged
)

func (s Status) String() string {
	switch s {
	case Unavailable:
		return "unavailable"
	case Managed:
		return "managed"
	case Unmanaged:
		return "unmanaged"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reasons a mountpoint is Unavailable.
var (
	ErrNotDirectory = errors.New("exists and is not a directory")
	ErrNotWritable  = errors.New("directory is not writable")
	ErrMounted      = errors.New("already a mount point")
	ErrMissing      = errors.New("does not exist and --manage was not given")
)

// Options controls Check.
type Options struct {
	// Manage allows Check to create a missing directory.
	Manage bool

	// DryRun reports Managed for a directory Check would create,
	// without creating it.
	DryRun bool

	// Logger receives the warning about unmanaged mountpoints. If nil,
	// slog.Default is used.
	Logger *slog.Logger

	// Mounted reports whether a path is a mount point. If nil,
	// mountinfo.Mounted is used.
	Mounted func(path string) (bool, error)
}

// Resolve returns mountpoint if set, otherwise the base name of
// imagePath under baseDir.
func Resolve(mountpoint, baseDir, imagePath string) string {
	if mountpoint != "" {
		return mountpoint
	}
	return filepath.Join(baseDir, filepath.Base(imagePath))
}

// Check classifies path and, for a missing directory with Manage set,
// creates it. The error explains an Unavailable result and is nil
// otherwise.
func Check(path string, options Options) (Status, error) {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Mounted == nil {
		options.Mounted = mountinfo.Mounted
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		return checkExisting(path, info, options)
	case !errors.Is(err, fs.ErrNotExist):
		return Unavailable, fmt.Errorf("mountpoint %s: %w", path, err)
	case !options.Manage:
		return Unavailable, fmt.Errorf("mountpoint %s %w", path, ErrMissing)
	case options.DryRun:
		return Managed, nil
	}

	if err := os.Mkdir(path, 0o777); err != nil {
		return Unavailable, fmt.Errorf("creating mountpoint: %w", err)
	}
	options.Logger.Debug("created mountpoint", "mountpoint", path)
	return Managed, nil
}

func checkExisting(path string, info fs.FileInfo, options Options) (Status, error) {
	if !info.IsDir() {
		return Unavailable, fmt.Errorf("mountpoint %s %w", path, ErrNotDirectory)
	}
	mounted, err := options.Mounted(path)
	if err != nil {
		return Unavailable, fmt.Errorf("checking whether %s is mounted: %w", path, err)
	}
	if mounted {
		return Unavailable, fmt.Errorf("mountpoint %s is %w", path, ErrMounted)
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return Unavailable, fmt.Errorf("mountpoint %s: %w: %w", path, ErrNotWritable, err)
	}
	if options.Manage {
		options.Logger.Warn("mountpoint already exists and will not be removed", "mountpoint", path)
	}
	return Unmanaged, nil
}

// ShouldRemove reports whether this process removes an owned
// mountpoint at shutdown. handedOff is true in a process whose daemon
// child took over the session; such a process never mounted, so its
// phase is NotMounted, and the child removes the directory instead.
// A process that never handed off removes what it owns whatever its
// phase.
func ShouldRemove(owned bool, phase isofs.Phase, handedOff bool) bool {
	return owned && (phase != isofs.NotMounted || !handedOff)
}

// Remove deletes the mountpoint directory. Failure is logged, not
// returned: the filesystem has already been served.
func Remove(path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("removing mountpoint", "mountpoint", path, "error", err)
		return
	}
	logger.Debug("removed mountpoint", "mountpoint", path)
}
