// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package fusemain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Exit codes returned in Result.Code.
const (
	ExitOK = 0

	// ExitInvalidArgs means the runtime argument vector did not parse.
	ExitInvalidArgs = 1

	// ExitNoMountpoint means the argument vector named no mountpoint.
	ExitNoMountpoint = 2

	// ExitSetup means the filesystem failed to initialize.
	ExitSetup = 3

	// ExitMount means the kernel mount failed.
	ExitMount = 4

	// ExitDaemonize means the daemon child could not be started or
	// exited without reporting.
	ExitDaemonize = 5
)

// Filesystem is what the runtime mounts.
type Filesystem interface {
	// Initialize prepares the filesystem to serve. It runs before the
	// kernel mount; an error aborts the mount.
	Initialize() error

	// Root returns the root node handed to go-fuse.
	Root() gofuse.InodeEmbedder

	// Destroy runs once after the last request has been served.
	Destroy() error

	// FsName is the source shown in the mount table.
	FsName() string
}

// Result is the outcome of Main.
type Result struct {
	Code int

	// Detached is true in a parent whose daemon child took over the
	// session, whether or not the child then mounted successfully.
	Detached bool
}

// Options configures Main.
type Options struct {
	// Logger receives diagnostic messages. If nil, a logger that
	// discards everything is used.
	Logger *slog.Logger

	// Handoff is sent to the daemon child when the runtime detaches.
	Handoff Handoff

	// Ready, if set, is called once the filesystem is mounted and
	// serving in this process.
	Ready func()

	// Executable and DaemonArgs select the command run as the daemon
	// child. They default to this process's executable and os.Args[1:].
	Executable string
	DaemonArgs []string

	// DaemonEnv is appended to the daemon child's environment.
	DaemonEnv []string

	// DaemonStderr receives the daemon child's standard error. If nil,
	// it is discarded.
	DaemonStderr io.Writer
}

// Main mounts filesystem as directed by argv and serves it until it is
// unmounted or ctx is canceled, in which case Main unmounts it.
func Main(ctx context.Context, argv []string, filesystem Filesystem, options Options) Result {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	logger := options.Logger

	args, err := ParseArgs(argv)
	if err != nil {
		logger.Error("invalid mount arguments", "error", err)
		if errors.Is(err, ErrNoMountpoint) {
			return Result{Code: ExitNoMountpoint}
		}
		return Result{Code: ExitInvalidArgs}
	}

	if args.detach() && !IsDaemonChild() {
		return daemonize(ctx, options)
	}
	if IsDaemonChild() {
		// Do not keep the caller's working directory busy.
		if err := os.Chdir("/"); err != nil {
			logger.Warn("changing to root directory", "error", err)
		}
	}
	return Result{Code: serve(ctx, args, filesystem, options)}
}

func serve(ctx context.Context, args Args, filesystem Filesystem, options Options) int {
	logger := options.Logger

	if err := filesystem.Initialize(); err != nil {
		logger.Error("filesystem initialization failed", "error", err)
		reportFailure(err, logger)
		return ExitSetup
	}

	server, err := gofuse.Mount(args.Mountpoint, filesystem.Root(), &gofuse.Options{
		MountOptions: mountOptions(args, filesystem.FsName()),
	})
	if err != nil {
		logger.Error("mounting filesystem", "mountpoint", args.Mountpoint, "error", err)
		reportFailure(err, logger)
		destroy(filesystem, logger)
		return ExitMount
	}
	logger.Debug("filesystem mounted", "mountpoint", args.Mountpoint)

	if err := reportReady(Ready{Mounted: true}); err != nil {
		logger.Warn("parent did not receive readiness", "error", err)
	}
	if options.Ready != nil {
		options.Ready()
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Debug("unmounting on cancellation", "mountpoint", args.Mountpoint)
			if err := server.Unmount(); err != nil {
				logger.Warn("unmount failed", "mountpoint", args.Mountpoint, "error", err)
			}
		case <-stopped:
		}
	}()
	server.Wait()
	close(stopped)

	logger.Debug("filesystem unmounted", "mountpoint", args.Mountpoint)
	destroy(filesystem, logger)
	return ExitOK
}

func destroy(filesystem Filesystem, logger *slog.Logger) {
	if err := filesystem.Destroy(); err != nil {
		logger.Warn("filesystem teardown", "error", err)
	}
}

// mountOptions translates runtime arguments into go-fuse mount options.
func mountOptions(args Args, fsName string) fuse.MountOptions {
	options := fuse.MountOptions{
		FsName:         fsName,
		Name:           "isomount",
		Debug:          args.Debug,
		SingleThreaded: args.SingleThread,
	}
	for _, option := range args.Options {
		switch option {
		case "allow_other":
			options.AllowOther = true
		default:
			if !slices.Contains(options.Options, option) {
				options.Options = append(options.Options, option)
			}
		}
	}
	return options
}

func reportFailure(cause error, logger *slog.Logger) {
	if err := ReportFailure(cause); err != nil {
		logger.Warn("parent did not receive the failure", "error", err)
	}
}
