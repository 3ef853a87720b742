// Copyright (c) 2026 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package pathutil resolves the well-known cwmpd directories. All of them
// can be relocated under CWMPD_PREFIX for staged installs and tests.
package pathutil

import (
	"os"
	"path/filepath"
)

const (
	defaultDataDir   = "/var/lib/cwmpd"
	defaultConfigDir = "/etc/cwmpd"
	defaultRunDir    = "/run/cwmpd"
)

func prefixed(dir string) string {
	if prefix := os.Getenv("CWMPD_PREFIX"); prefix != "" {
		return filepath.Join(filepath.Clean(prefix), dir)
	}

	return dir
}

// DataPath returns the cwmpd data path with the given relative path appended.
func DataPath(path string) string {
	return filepath.Join(prefixed(defaultDataDir), filepath.Clean(path))
}

// ConfigPath returns the cwmpd config path with the given relative path appended.
func ConfigPath(path string) string {
	return filepath.Join(prefixed(defaultConfigDir), filepath.Clean(path))
}

// ConfigFile returns the configuration file to load: CWMPD_CONFIG if set,
// cwmpd.yaml in the config directory otherwise.
func ConfigFile() string {
	if file := os.Getenv("CWMPD_CONFIG"); file != "" {
		return file
	}

	return ConfigPath("cwmpd.yaml")
}

// RunDir returns the directory holding sockets and other volatile data.
// CWMPD_RUN_DIR takes precedence over CWMPD_PREFIX.
func RunDir() string {
	if dir := os.Getenv("CWMPD_RUN_DIR"); dir != "" {
		return filepath.Clean(dir)
	}

	return prefixed(defaultRunDir)
}

// RunPath returns the runtime path with the given relative path appended.
func RunPath(path string) string {
	return filepath.Join(RunDir(), filepath.Clean(path))
}
