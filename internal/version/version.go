// Package version provides build version information.
package version

import (
	"runtime"
)

var (
	// Version is the injector release (set by build flags). Patched modules
	// reference the injector by this version.
	Version = "0.0.0.0"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)
