// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"os/exec"
)

// RequireFUSE skips the test unless /dev/fuse can be opened and a
// fusermount helper is on PATH. Mounting can still fail later, for
// example inside a container without CAP_SYS_ADMIN; tests skip on
// that error too.
func RequireFUSE(t interface {
	Helper()
	Skip(args ...any)
}) {
	t.Helper()
	device, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		t.Skip("skipping: /dev/fuse not available")
		return
	}
	device.Close()
	if _, err := exec.LookPath("fusermount3"); err == nil {
		return
	}
	if _, err := exec.LookPath("fusermount"); err != nil {
		t.Skip("skipping: fusermount not on PATH")
	}
}
