// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package fusemain

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/isomount/isomount/lib/codec"
)

// Inherited descriptor numbers in a daemon child. ExtraFiles entries
// start at 3.
const (
	handoffFD = 3
	readyFD   = 4
)

// daemonEnv marks a process started by the runtime to serve a
// detached session.
const daemonEnv = "_ISOMOUNT_DAEMON"

// Handoff is what the foreground process tells its daemon child about
// the session.
type Handoff struct {
	// Mountpoint is the resolved mountpoint. The child does not
	// resolve it again.
	Mountpoint string `cbor:"mountpoint"`

	// MountpointOwned is true when the mountpoint was created for this
	// session, making its removal the child's job.
	MountpointOwned bool `cbor:"mountpoint_owned"`
}

// Ready is the daemon child's report to the waiting parent.
type Ready struct {
	// Mounted is true once the filesystem is serving.
	Mounted bool `cbor:"mounted"`

	// Error describes why the child gave up. Empty when Mounted.
	Error string `cbor:"error,omitempty"`
}

// IsDaemonChild reports whether this process was started by the
// runtime to serve a detached session.
func IsDaemonChild() bool {
	return os.Getenv(daemonEnv) == "1"
}

func writeMessage(w io.Writer, message any) error {
	return codec.NewEncoder(w).Encode(message)
}

func readMessage(r io.Reader, message any) error {
	return codec.NewDecoder(r).Decode(message)
}

// ReceiveHandoff reads the parent's handoff. It may be called once, and
// only in a daemon child.
func ReceiveHandoff() (Handoff, error) {
	if !IsDaemonChild() {
		return Handoff{}, errors.New("not a daemon child")
	}
	pipe := os.NewFile(handoffFD, "handoff")
	if pipe == nil {
		return Handoff{}, errors.New("handoff descriptor is not open")
	}
	defer pipe.Close()

	var handoff Handoff
	if err := readMessage(pipe, &handoff); err != nil {
		return Handoff{}, fmt.Errorf("reading handoff: %w", err)
	}
	if handoff.Mountpoint == "" {
		return Handoff{}, errors.New("handoff carries no mountpoint")
	}
	return handoff, nil
}

var readyOnce sync.Once

// reportReady sends ready to the waiting parent. Only the first report
// of a process is delivered; outside a daemon child it does nothing.
func reportReady(ready Ready) error {
	if !IsDaemonChild() {
		return nil
	}
	var err error
	readyOnce.Do(func() {
		pipe := os.NewFile(readyFD, "ready")
		if pipe == nil {
			err = errors.New("ready descriptor is not open")
			return
		}
		defer pipe.Close()
		if writeErr := writeMessage(pipe, ready); writeErr != nil {
			err = fmt.Errorf("reporting readiness: %w", writeErr)
		}
	})
	return err
}

// ReportFailure tells the waiting parent that this daemon child could
// not start the session. Call it when startup fails before Main runs.
func ReportFailure(cause error) error {
	return reportReady(Ready{Error: cause.Error()})
}
