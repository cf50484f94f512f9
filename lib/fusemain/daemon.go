// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package fusemain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// errChildVanished means the daemon child exited or closed its ready
// pipe without reporting.
var errChildVanished = errors.New("daemon exited before reporting readiness")

// daemonize starts a daemon child, hands it the session, and waits for
// its readiness report. The returned Result is the parent's.
func daemonize(ctx context.Context, options Options) Result {
	logger := options.Logger

	executable := options.Executable
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			logger.Error("cannot determine own executable path", "error", err)
			return Result{Code: ExitDaemonize}
		}
		executable = self
	}
	childArgs := options.DaemonArgs
	if childArgs == nil {
		childArgs = os.Args[1:]
	}

	handoffRead, handoffWrite, err := os.Pipe()
	if err != nil {
		logger.Error("creating handoff pipe", "error", err)
		return Result{Code: ExitDaemonize}
	}
	readyRead, readyWrite, err := os.Pipe()
	if err != nil {
		handoffRead.Close()
		handoffWrite.Close()
		logger.Error("creating ready pipe", "error", err)
		return Result{Code: ExitDaemonize}
	}
	defer readyRead.Close()

	command := exec.Command(executable, childArgs...)
	command.Env = append(append(os.Environ(), options.DaemonEnv...), daemonEnv+"=1")
	command.ExtraFiles = []*os.File{handoffRead, readyWrite}
	command.Stderr = options.DaemonStderr
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	startErr := command.Start()
	// The child holds its own copies now.
	handoffRead.Close()
	readyWrite.Close()
	if startErr != nil {
		handoffWrite.Close()
		logger.Error("starting daemon", "executable", executable, "error", startErr)
		return Result{Code: ExitDaemonize}
	}

	exited := make(chan error, 1)
	go func() { exited <- command.Wait() }()

	sendErr := writeMessage(handoffWrite, options.Handoff)
	handoffWrite.Close()
	if sendErr != nil {
		logger.Error("sending handoff to daemon", "pid", command.Process.Pid, "error", sendErr)
		command.Process.Kill()
		<-exited
		return Result{Code: ExitDaemonize}
	}

	ready, err := awaitReady(ctx, readyRead)
	if err != nil {
		logger.Error("daemon did not start", "pid", command.Process.Pid, "error", err)
		command.Process.Kill()
		<-exited
		return Result{Code: ExitDaemonize}
	}
	if !ready.Mounted {
		logger.Error("daemon failed to mount", "pid", command.Process.Pid, "error", ready.Error)
		return Result{Code: ExitMount, Detached: true}
	}
	logger.Debug("daemon serving", "pid", command.Process.Pid, "mountpoint", options.Handoff.Mountpoint)
	return Result{Code: ExitOK, Detached: true}
}

// awaitReady reads one Ready message, giving up when ctx is done.
func awaitReady(ctx context.Context, pipe *os.File) (Ready, error) {
	type outcome struct {
		ready Ready
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		var ready Ready
		err := readMessage(pipe, &ready)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = errChildVanished
		}
		done <- outcome{ready, err}
	}()

	select {
	case result := <-done:
		return result.ready, result.err
	case <-ctx.Done():
		pipe.Close()
		return Ready{}, fmt.Errorf("waiting for daemon: %w", ctx.Err())
	}
}
