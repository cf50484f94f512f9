// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package mountpoint

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/isomount/isomount/lib/isofs"
)

func notMounted(string) (bool, error) { return false, nil }

func TestResolve(t *testing.T) {
	tests := []struct {
		mountpoint, baseDir, image string
		want                       string
	}{
		{"/mnt/explicit", "/home/u/media", "/images/disc.iso", "/mnt/explicit"},
		{"", "/home/u/media", "/images/disc.iso", "/home/u/media/disc.iso"},
		{"", "/home/u/media/", "/images/nested/ubuntu-24.04.iso", "/home/u/media/ubuntu-24.04.iso"},
	}
	for _, test := range tests {
		if got := Resolve(test.mountpoint, test.baseDir, test.image); got != test.want {
			t.Errorf("Resolve(%q, %q, %q) = %q, want %q", test.mountpoint, test.baseDir, test.image, got, test.want)
		}
	}
}

func TestCheckExistingWritableDirectory(t *testing.T) {
	path := t.TempDir()
	status, err := Check(path, Options{Mounted: notMounted})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != Unmanaged {
		t.Errorf("status = %s, want unmanaged", status)
	}
}

func TestCheckExistingWithManageWarns(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	path := t.TempDir()
	status, err := Check(path, Options{Manage: true, Logger: logger, Mounted: notMounted})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != Unmanaged {
		t.Errorf("status = %s, want unmanaged", status)
	}
	if !strings.Contains(logs.String(), "will not be removed") {
		t.Errorf("no warning logged; got %q", logs.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("existing directory disturbed: %v", err)
	}
}

func TestCheckCreatesManaged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disc.iso")
	status, err := Check(path, Options{Manage: true, Mounted: notMounted})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != Managed {
		t.Errorf("status = %s, want managed", status)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("mountpoint not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("created mountpoint is not a directory")
	}
}

func TestCheckDryRunDoesNotCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disc.iso")
	status, err := Check(path, Options{Manage: true, DryRun: true, Mounted: notMounted})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != Managed {
		t.Errorf("status = %s, want managed", status)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run created the mountpoint (stat error %v)", err)
	}
}

func TestCheckMissingWithoutManage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disc.iso")
	status, err := Check(path, Options{Mounted: notMounted})
	if status != Unavailable {
		t.Errorf("status = %s, want unavailable", status)
	}
	if !errors.Is(err, ErrMissing) {
		t.Errorf("error = %v, want ErrMissing", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("mountpoint created without --manage")
	}
}

func TestCheckCreateFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "parent")
	status, err := Check(path, Options{Manage: true, Mounted: notMounted})
	if status != Unavailable || err == nil {
		t.Errorf("Check = %s, %v; want unavailable with an error", status, err)
	}
}

func TestCheckRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	for _, manage := range []bool{false, true} {
		status, err := Check(path, Options{Manage: manage, Mounted: notMounted})
		if status != Unavailable || !errors.Is(err, ErrNotDirectory) {
			t.Errorf("manage=%v: Check = %s, %v; want unavailable, ErrNotDirectory", manage, status, err)
		}
	}
}

func TestCheckUnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("skipping: root bypasses permission checks")
	}
	path := filepath.Join(t.TempDir(), "locked")
	if err := os.Mkdir(path, 0o555); err != nil {
		t.Fatal(err)
	}
	status, err := Check(path, Options{Manage: true, Mounted: notMounted})
	if status != Unavailable || !errors.Is(err, ErrNotWritable) {
		t.Errorf("Check = %s, %v; want unavailable, ErrNotWritable", status, err)
	}
}

// An image whose base name matches a directory that already carries
// another mount must not adopt that directory.
func TestCheckBasenameCollisionWithMountedDirectory(t *testing.T) {
	baseDir := t.TempDir()
	occupied := filepath.Join(baseDir, "disc.iso")
	if err := os.Mkdir(occupied, 0o755); err != nil {
		t.Fatal(err)
	}
	mounted := func(path string) (bool, error) { return path == occupied, nil }

	path := Resolve("", baseDir, "/other/images/disc.iso")
	for _, manage := range []bool{false, true} {
		status, err := Check(path, Options{Manage: manage, Mounted: mounted})
		if status != Unavailable {
			t.Errorf("manage=%v: status = %s, want unavailable", manage, status)
		}
		if !errors.Is(err, ErrMounted) {
			t.Errorf("manage=%v: error = %v, want ErrMounted", manage, err)
		}
	}
}

func TestCheckMountedProbeFailure(t *testing.T) {
	probeErr := errors.New("mountinfo unreadable")
	status, err := Check(t.TempDir(), Options{Mounted: func(string) (bool, error) { return false, probeErr }})
	if status != Unavailable || !errors.Is(err, probeErr) {
		t.Errorf("Check = %s, %v; want unavailable wrapping the probe error", status, err)
	}
}

func TestCheckDefaultProbe(t *testing.T) {
	// A fresh temporary directory is never a mount point.
	status, err := Check(t.TempDir(), Options{})
	if err != nil || status != Unmanaged {
		t.Errorf("Check = %s, %v; want unmanaged", status, err)
	}
}

func TestShouldRemove(t *testing.T) {
	tests := []struct {
		name      string
		owned     bool
		phase     isofs.Phase
		handedOff bool
		want      bool
	}{
		{"not owned", false, isofs.Unmounted, false, false},
		{"not owned, handed off", false, isofs.NotMounted, true, false},
		{"parent after handoff", true, isofs.NotMounted, true, false},
		{"served and unmounted", true, isofs.Unmounted, false, true},
		{"initialize failed", true, isofs.Failed, false, true},
		{"never initialized, no handoff", true, isofs.NotMounted, false, true},
		{"mounted, handed off", true, isofs.Mounted, true, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ShouldRemove(test.owned, test.phase, test.handedOff); got != test.want {
				t.Errorf("ShouldRemove(%v, %s, %v) = %v, want %v", test.owned, test.phase, test.handedOff, got, test.want)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "managed")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	Remove(path, nil)
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("mountpoint still present (stat error %v)", err)
	}
}

func TestRemoveFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	path := filepath.Join(t.TempDir(), "busy")
	if err := os.MkdirAll(filepath.Join(path, "child"), 0o755); err != nil {
		t.Fatal(err)
	}
	Remove(path, logger)
	if !strings.Contains(logs.String(), "removing mountpoint") {
		t.Errorf("removal failure not logged; got %q", logs.String())
	}
}

func TestStatusString(t *testing.T) {
	if Unavailable.String() != "unavailable" || Managed.String() != "managed" || Unmanaged.String() != "unmanaged" {
		t.Error("unexpected status names")
	}
}
