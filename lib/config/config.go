// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// EnvConfigFile names the environment variable that locates the
// configuration file when --config is not given.
const EnvConfigFile = "ISOMOUNT_CONFIG"

// Default permission bits for exposed entries.
const (
	DefaultFileMode os.FileMode = 0o444
	DefaultDirMode  os.FileMode = 0o555
)

// Config is the parsed configuration of one isomount invocation. It is
// not modified after Parse returns.
type Config struct {
	// Mount runtime flags, forwarded by ForwardedArgs.
	Debug        bool
	Foreground   bool
	SingleThread bool

	// Options are mount options, one per element, without duplicates.
	Options []string

	// Manage allows creating and removing the mountpoint.
	Manage bool

	// DryRun reports what would happen without creating or mounting
	// anything.
	DryRun bool

	// BaseDir is where a mountpoint is synthesized when none is given.
	BaseDir string

	// ImagePath is the absolute path of the image.
	ImagePath string

	// Mountpoint is the absolute explicit mountpoint, or empty.
	Mountpoint string

	// ConfigFile is the configuration file that was loaded, or empty.
	ConfigFile string

	// Permission bits for files and directories, and bits to clear
	// from both.
	FileMode os.FileMode
	DirMode  os.FileMode
	Umask    os.FileMode
}

// AddOptions appends each comma-separated option in values to dst,
// skipping empty elements and options already present.
func AddOptions(dst []string, values ...string) []string {
	for _, value := range values {
		for _, option := range strings.Split(value, ",") {
			option = strings.TrimSpace(option)
			if option == "" || slices.Contains(dst, option) {
				continue
			}
			dst = append(dst, option)
		}
	}
	return dst
}

// ForwardedArgs returns the runtime argument vector for cfg, with
// argv0 as the program name and cfg.Mountpoint last. The caller must
// have resolved the mountpoint. The result is a new slice whose length
// and capacity are the number of arguments.
func ForwardedArgs(cfg *Config, argv0 string) []string {
	options := slices.Clone(cfg.Options)
	if !slices.Contains(options, "ro") && !slices.Contains(options, "rw") {
		options = append(options, "ro")
	}

	count := 2 + 2*len(options)
	for _, set := range []bool{cfg.Debug, cfg.Foreground, cfg.SingleThread} {
		if set {
			count++
		}
	}

	argv := make([]string, 0, count)
	argv = append(argv, argv0)
	if cfg.Debug {
		argv = append(argv, "-d")
	}
	if cfg.Foreground {
		argv = append(argv, "-f")
	}
	if cfg.SingleThread {
		argv = append(argv, "-s")
	}
	for _, option := range options {
		argv = append(argv, "-o", option)
	}
	return append(argv, cfg.Mountpoint)
}

// Print writes a human-readable summary of cfg to w.
func (c *Config) Print(w io.Writer) {
	fmt.Fprintf(w, "debug: %t\n", c.Debug)
	fmt.Fprintf(w, "foreground: %t\n", c.Foreground)
	fmt.Fprintf(w, "single thread: %t\n", c.SingleThread)
	fmt.Fprintf(w, "fuse mount options: %s\n", strings.Join(c.Options, ","))
	fmt.Fprintf(w, "manage mount point: %t\n", c.Manage)
	fmt.Fprintf(w, "base dir: %s\n", c.BaseDir)
	fmt.Fprintf(w, "image path: %s\n", c.ImagePath)
	fmt.Fprintf(w, "mountpoint: %s\n", c.Mountpoint)
	if c.ConfigFile != "" {
		fmt.Fprintf(w, "config file: %s\n", c.ConfigFile)
	}
	fmt.Fprintf(w, "file mode: %04o\n", uint32(c.FileMode))
	fmt.Fprintf(w, "dir mode: %04o\n", uint32(c.DirMode))
	fmt.Fprintf(w, "umask: %04o\n", uint32(c.Umask))
}

// Error is a command line or configuration file error.
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func configError(format string, args ...any) *Error {
	return &Error{Err: fmt.Errorf(format, args...)}
}
