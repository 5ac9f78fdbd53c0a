// Package version provides build-time version information.
package version

import "fmt"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Pipeline identifies the output-affecting code version. It is written to
// manifest.json and excludes build time so rebuilds stay byte-identical.
func Pipeline() string {
	return "stele-slicer/" + Version
}

// String is the human-readable version line.
func String() string {
	return fmt.Sprintf("stele-slicer %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
