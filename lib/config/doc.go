// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

// Package config builds the isomount [Config] from the command line and
// an optional YAML file, and serializes the part of it the mount
// runtime needs into a runtime argument vector.
//
// # Command line
//
//	isomount [options] <image> [mountpoint]
//
// The first positional argument is the image, the second an explicit
// mountpoint. Options may appear anywhere. Relative paths are made
// absolute against the working directory at parse time. --version and
// --help print to standard output and exit. --dry-run is recorded in
// the Config for the caller, which reports instead of mounting.
//
// # Configuration file
//
// A YAML file is read only when named by --config or the
// ISOMOUNT_CONFIG environment variable. There is no discovery. Keys:
//
//	base_dir: ${HOME}/media
//	manage: true
//	debug: false
//	foreground: false
//	single_thread: false
//	options: [noatime]
//	file_mode: "0444"
//	dir_mode: "0555"
//	umask: "0022"
//
// ${VAR} and ${VAR:-default} are expanded in base_dir. Values given on
// the command line override the file; mount options from both are
// combined, file first.
//
// # Runtime arguments
//
// [ForwardedArgs] produces the argument vector consumed by
// fusemain.ParseArgs: debug, foreground and single-thread flags, one
// -o per mount option, and the mountpoint last. "ro" is added unless
// the options already say ro or rw.
package config
