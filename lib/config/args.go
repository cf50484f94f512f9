// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/isomount/isomount/lib/version"
)

// ErrExited is returned by Parse after --version or --help when the
// Exit hook returns instead of terminating the process.
var ErrExited = errors.New("exit requested")

// Parser holds the process hooks used while parsing. The zero value is
// not usable; start from DefaultParser.
type Parser struct {
	// Stdout receives version and usage output.
	Stdout io.Writer

	// Exit terminates the process after --version or --help.
	Exit func(code int)

	Getenv  func(key string) string
	Getwd   func() (string, error)
	HomeDir func() (string, error)
}

// DefaultParser returns a Parser bound to the running process.
func DefaultParser() *Parser {
	return &Parser{
		Stdout:  os.Stdout,
		Exit:    os.Exit,
		Getenv:  os.Getenv,
		Getwd:   os.Getwd,
		HomeDir: os.UserHomeDir,
	}
}

// Parse parses args with DefaultParser.
func Parse(args []string) (*Config, error) {
	return DefaultParser().Parse(args)
}

const usage = `Usage: isomount [options] <image-path> [mountpoint]

Mount an ISO 9660 image read-only through FUSE. Without a mountpoint,
the image is mounted under the base directory using its file name.

Options:
`

// Parse builds a Config from args, which excludes the program name.
// Values from the configuration file apply first; flags given on the
// command line override them, and -o options are added to the file's.
func (p *Parser) Parse(args []string) (*Config, error) {
	var (
		baseDir      string
		manage       bool
		showVersion  bool
		showHelp     bool
		debug        bool
		foreground   bool
		singleThread bool
		options      []string
		dryRun       bool
		configFile   string
	)

	flagSet := pflag.NewFlagSet("isomount", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.SetInterspersed(true)
	flagSet.StringVar(&baseDir, "base-dir", "", "directory for implicit mountpoints (default $HOME/media)")
	flagSet.BoolVarP(&manage, "manage", "m", false, "create the mountpoint if missing and remove it on unmount")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit; with -d, include build details")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show this help")
	flagSet.BoolVarP(&debug, "debug", "d", false, "log every filesystem request; implies --foreground")
	flagSet.BoolVarP(&foreground, "foreground", "f", false, "stay in the foreground")
	flagSet.BoolVarP(&singleThread, "single-thread", "s", false, "serve requests on one goroutine")
	flagSet.StringArrayVarP(&options, "options", "o", nil, "mount options, comma separated (repeatable)")
	flagSet.BoolVarP(&dryRun, "dry-run", "n", false, "print the resolved configuration and exit")
	flagSet.StringVar(&configFile, "config", "", "configuration file (default $"+EnvConfigFile+")")

	if err := flagSet.Parse(args); err != nil {
		return nil, &Error{Err: err}
	}

	if showVersion {
		if debug {
			fmt.Fprintf(p.Stdout, "isomount %s\n", version.Full())
		} else {
			version.Fprint(p.Stdout, "isomount")
		}
		p.Exit(0)
		return nil, ErrExited
	}
	if showHelp {
		fmt.Fprint(p.Stdout, usage)
		fmt.Fprint(p.Stdout, flagSet.FlagUsages())
		p.Exit(0)
		return nil, ErrExited
	}

	cfg := &Config{
		FileMode: DefaultFileMode,
		DirMode:  DefaultDirMode,
	}

	if configFile == "" {
		configFile = p.Getenv(EnvConfigFile)
	}
	if configFile != "" {
		file, err := LoadFile(configFile, p.Getenv)
		if err != nil {
			return nil, configError("loading config: %w", err)
		}
		file.apply(cfg)
		cfg.ConfigFile = configFile
	}

	if flagSet.Changed("base-dir") {
		cfg.BaseDir = baseDir
	}
	if flagSet.Changed("manage") {
		cfg.Manage = manage
	}
	if flagSet.Changed("debug") {
		cfg.Debug = debug
	}
	if flagSet.Changed("foreground") {
		cfg.Foreground = foreground
	}
	if flagSet.Changed("single-thread") {
		cfg.SingleThread = singleThread
	}
	cfg.Options = AddOptions(cfg.Options, options...)
	cfg.DryRun = dryRun

	positional := flagSet.Args()
	switch len(positional) {
	case 0:
		return nil, configError("missing image path")
	case 1:
		cfg.ImagePath = positional[0]
	case 2:
		cfg.ImagePath = positional[0]
		cfg.Mountpoint = positional[1]
	default:
		return nil, configError("unexpected argument %q after mountpoint", positional[2])
	}
	if cfg.ImagePath == "" {
		return nil, configError("empty image path")
	}

	if cfg.BaseDir == "" {
		home, err := p.HomeDir()
		if err != nil {
			return nil, configError("no --base-dir given and home directory unknown: %w", err)
		}
		cfg.BaseDir = filepath.Join(home, "media")
	}

	for _, path := range []*string{&cfg.ImagePath, &cfg.Mountpoint, &cfg.BaseDir} {
		resolved, err := p.absolute(*path)
		if err != nil {
			return nil, configError("resolving %s: %w", *path, err)
		}
		*path = resolved
	}
	return cfg, nil
}

// absolute makes path absolute against the working directory. An
// empty path stays empty.
func (p *Parser) absolute(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	wd, err := p.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, path), nil
}
