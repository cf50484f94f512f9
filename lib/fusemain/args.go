// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package fusemain

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// ErrNoMountpoint is returned by ParseArgs when the argument vector
// names no mountpoint.
var ErrNoMountpoint = errors.New("no mountpoint specified")

// Args is a parsed runtime argument vector.
type Args struct {
	Program      string
	Debug        bool
	Foreground   bool
	SingleThread bool

	// Options holds every -o value, split on commas, in order.
	Options []string

	Mountpoint string
}

// ParseArgs parses a runtime argument vector. argv[0] is the program
// name. Exactly one positional argument, the mountpoint, is accepted.
func ParseArgs(argv []string) (Args, error) {
	if len(argv) == 0 {
		return Args{}, errors.New("empty argument vector")
	}
	args := Args{Program: argv[0]}

	var options []string
	flagSet := pflag.NewFlagSet(argv[0], pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.BoolVarP(&args.Debug, "debug", "d", false, "trace every request; implies -f")
	flagSet.BoolVarP(&args.Foreground, "foreground", "f", false, "do not detach")
	flagSet.BoolVarP(&args.SingleThread, "single-thread", "s", false, "serve requests on one goroutine")
	flagSet.StringArrayVarP(&options, "options", "o", nil, "mount options")

	if err := flagSet.Parse(argv[1:]); err != nil {
		return Args{}, err
	}

	for _, value := range options {
		for _, option := range strings.Split(value, ",") {
			if option != "" {
				args.Options = append(args.Options, option)
			}
		}
	}

	positional := flagSet.Args()
	switch len(positional) {
	case 0:
		return Args{}, ErrNoMountpoint
	case 1:
		args.Mountpoint = positional[0]
	default:
		return Args{}, fmt.Errorf("unexpected argument %q after mountpoint", positional[1])
	}
	return args, nil
}

// detach reports whether the runtime should leave the foreground.
func (a Args) detach() bool {
	return !a.Foreground && !a.Debug
}
