// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// isomount mounts an ISO 9660 image read-only through FUSE.
//
//	isomount [options] <image-path> [mountpoint]
//
// Without a mountpoint the image is mounted at <base-dir>/<image name>,
// where the base directory defaults to $HOME/media. With --manage a
// missing mountpoint is created, and removed again once the image is
// unmounted. An existing directory is never removed.
//
// Unless -f or -d is given, isomount prints the mountpoint and returns
// once a background copy of itself has mounted the image. That copy
// serves requests until the filesystem is unmounted with fusermount -u
// or umount, and removes a managed mountpoint afterwards.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/isomount/isomount/lib/config"
	"github.com/isomount/isomount/lib/fusemain"
	"github.com/isomount/isomount/lib/isofs"
	"github.com/isomount/isomount/lib/mountpoint"
	"github.com/isomount/isomount/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	process.Exit(err)
}

// imageError means the image cannot be mounted at all.
type imageError struct {
	path string
	err  error
}

func (e *imageError) Error() string { return fmt.Sprintf("image %s: %v", e.path, e.err) }

func (e *imageError) Unwrap() error { return e.err }

// mountpointError means no usable mountpoint could be prepared.
type mountpointError struct {
	err error
}

func (e *mountpointError) Error() string { return e.err.Error() }

func (e *mountpointError) Unwrap() error { return e.err }

// runtimeExit carries a non-zero exit code from the mount runtime,
// which has already logged the cause.
type runtimeExit int

func (e runtimeExit) Error() string { return fmt.Sprintf("mount runtime exited with code %d", int(e)) }

func (e runtimeExit) ExitCode() int { return int(e) }

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	parser := config.DefaultParser()
	parser.Stdout = stdout
	cfg, err := parser.Parse(argv[1:])
	if errors.Is(err, config.ErrExited) {
		return nil
	}
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if fusemain.IsDaemonChild() {
		return runDaemon(ctx, cfg, argv[0], logger)
	}

	if err := checkImage(cfg.ImagePath); err != nil {
		return err
	}

	cfg.Mountpoint = mountpoint.Resolve(cfg.Mountpoint, cfg.BaseDir, cfg.ImagePath)
	status, err := mountpoint.Check(cfg.Mountpoint, mountpoint.Options{
		Manage: cfg.Manage,
		DryRun: cfg.DryRun,
		Logger: logger,
	})
	if status == mountpoint.Unavailable {
		return &mountpointError{err: err}
	}
	owned := status == mountpoint.Managed

	if cfg.DryRun {
		cfg.Print(stdout)
		fmt.Fprintf(stdout, "mountpoint status: %s\n", status)
		fmt.Fprintf(stdout, "mount arguments: %s\n", strings.Join(config.ForwardedArgs(cfg, argv[0]), " "))
		return nil
	}

	fmt.Fprintln(stdout, cfg.Mountpoint)
	return mount(ctx, cfg, argv[0], owned, logger, daemonStderr(stderr))
}

// runDaemon serves the session handed over by the foreground process.
// Every failure is reported back to it.
func runDaemon(ctx context.Context, cfg *config.Config, argv0 string, logger *slog.Logger) error {
	handoff, err := fusemain.ReceiveHandoff()
	if err != nil {
		reportFailure(err, logger)
		return err
	}
	cfg.Mountpoint = handoff.Mountpoint

	if err := checkImage(cfg.ImagePath); err != nil {
		// The foreground process leaves an owned mountpoint to us, so
		// it is gone by the time the failure reaches it.
		if handoff.MountpointOwned {
			mountpoint.Remove(cfg.Mountpoint, logger)
		}
		reportFailure(err, logger)
		return err
	}
	return mount(ctx, cfg, argv0, handoff.MountpointOwned, logger, nil)
}

func reportFailure(err error, logger *slog.Logger) {
	if reportErr := fusemain.ReportFailure(err); reportErr != nil {
		logger.Warn("parent did not receive the failure", "error", reportErr)
	}
}

// mount runs the session and removes an owned mountpoint afterwards
// if this process is the one responsible for it.
func mount(ctx context.Context, cfg *config.Config, argv0 string, owned bool, logger *slog.Logger, childStderr io.Writer) error {
	session := isofs.NewSession(cfg.ImagePath, owned)
	session.FileMode = uint32(cfg.FileMode)
	session.DirMode = uint32(cfg.DirMode)
	session.Umask = uint32(cfg.Umask)
	adapter := isofs.New(session, isofs.Options{Logger: logger})

	result := fusemain.Main(ctx, config.ForwardedArgs(cfg, argv0), adapter, fusemain.Options{
		Logger: logger,
		Handoff: fusemain.Handoff{
			Mountpoint:      cfg.Mountpoint,
			MountpointOwned: owned,
		},
		DaemonStderr: childStderr,
	})

	if mountpoint.ShouldRemove(owned, adapter.Phase(), result.Detached) {
		mountpoint.Remove(cfg.Mountpoint, logger)
	}
	if result.Code != fusemain.ExitOK {
		return runtimeExit(result.Code)
	}
	return nil
}

// daemonStderr returns where a daemon child writes its log: stderr,
// unless stderr is a terminal the child would keep writing to after
// the foreground process has returned.
func daemonStderr(stderr io.Writer) io.Writer {
	if file, ok := stderr.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return nil
	}
	return stderr
}

// checkImage verifies that path is a readable regular file.
func checkImage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &imageError{path: path, err: err}
	}
	if !info.Mode().IsRegular() {
		return &imageError{path: path, err: errors.New("not a regular file")}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return &imageError{path: path, err: fmt.Errorf("not readable: %w", err)}
	}
	return nil
}
