// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime/debug"
	"strings"
	"testing"
)

func stubBuildInfo(t *testing.T, settings ...debug.BuildSetting) {
	t.Helper()
	original := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
	t.Cleanup(func() { readBuildInfo = original })
}

func TestCommitPrefersInjectedValue(t *testing.T) {
	original := GitCommit
	GitCommit = "abc1234"
	t.Cleanup(func() { GitCommit = original })
	stubBuildInfo(t, debug.BuildSetting{Key: "vcs.revision", Value: "ffffffffffffffff"})

	if got := Commit(); got != "abc1234" {
		t.Errorf("Commit = %q, want abc1234", got)
	}
}

func TestCommitFromBuildInfo(t *testing.T) {
	stubBuildInfo(t,
		debug.BuildSetting{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)
	if got := Commit(); got != "0123456789ab-dirty" {
		t.Errorf("Commit = %q, want 0123456789ab-dirty", got)
	}
}

func TestCommitWithoutVCS(t *testing.T) {
	stubBuildInfo(t)
	if got := Commit(); got != "unknown" {
		t.Errorf("Commit = %q, want unknown", got)
	}
}

func TestFprint(t *testing.T) {
	stubBuildInfo(t)
	var buffer bytes.Buffer
	Fprint(&buffer, "isomount")
	line := buffer.String()
	if !strings.HasPrefix(line, "isomount "+Version+" (") || !strings.HasSuffix(line, ")\n") {
		t.Errorf("Fprint wrote %q", line)
	}
}

func TestFull(t *testing.T) {
	if full := Full(); !strings.Contains(full, "Go: go") && !strings.Contains(full, "Go: devel") {
		t.Errorf("Full lacks the Go version: %q", full)
	}
}
