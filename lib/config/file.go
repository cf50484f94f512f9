// Copyright 2026 The Isomount Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// File is the content of a configuration file. Unset keys leave the
// built-in defaults in place.
type File struct {
	BaseDir      string   `yaml:"base_dir"`
	Manage       *bool    `yaml:"manage"`
	Debug        *bool    `yaml:"debug"`
	Foreground   *bool    `yaml:"foreground"`
	SingleThread *bool    `yaml:"single_thread"`
	Options      []string `yaml:"options"`

	// Octal permission strings such as "0444".
	FileMode string `yaml:"file_mode"`
	DirMode  string `yaml:"dir_mode"`
	Umask    string `yaml:"umask"`
}

// LoadFile reads and validates the configuration file at path.
// Unknown keys are errors. Variables in base_dir are looked up with
// getenv, or in the process environment when getenv is nil.
func LoadFile(path string, getenv func(string) string) (*File, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	file.BaseDir = expandVars(file.BaseDir, getenv)
	for _, mode := range []struct{ key, value string }{
		{"file_mode", file.FileMode},
		{"dir_mode", file.DirMode},
		{"umask", file.Umask},
	} {
		if mode.value == "" {
			continue
		}
		if _, err := parseMode(mode.value); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, mode.key, err)
		}
	}
	return &file, nil
}

// apply copies the values set in f into cfg.
func (f *File) apply(cfg *Config) {
	if f.BaseDir != "" {
		cfg.BaseDir = f.BaseDir
	}
	setBool(&cfg.Manage, f.Manage)
	setBool(&cfg.Debug, f.Debug)
	setBool(&cfg.Foreground, f.Foreground)
	setBool(&cfg.SingleThread, f.SingleThread)
	cfg.Options = AddOptions(cfg.Options, f.Options...)
	setMode(&cfg.FileMode, f.FileMode)
	setMode(&cfg.DirMode, f.DirMode)
	setMode(&cfg.Umask, f.Umask)
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

// setMode assigns a mode already validated by LoadFile.
func setMode(dst *os.FileMode, value string) {
	if mode, err := parseMode(value); value != "" && err == nil {
		*dst = mode
	}
}

// parseMode parses an octal permission string.
func parseMode(value string) (os.FileMode, error) {
	bits, err := strconv.ParseUint(value, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", value)
	}
	if bits&^0o777 != 0 {
		return 0, fmt.Errorf("mode %q has bits outside 0777", value)
	}
	return os.FileMode(bits), nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, looking
// variables up with getenv.
func expandVars(s string, getenv func(string) string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
