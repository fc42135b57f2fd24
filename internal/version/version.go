/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build identification.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current Magbench version, set at build time:
//
//	-X github.com/benchworks/magbench/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the git commit the binary was built from, set at build time.
var Commit = "unknown"

// String returns a one-line build description.
func String() string {
	return fmt.Sprintf("magbench %s (%s, %s %s/%s)", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
