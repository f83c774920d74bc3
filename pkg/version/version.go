// Package version holds build-time version information.
package version

// Set via -ldflags at build time; defaults are used for local runs.
var (
	// Version is the semantic version of the server.
	Version = "0.1.0-dev"

	// GitCommit is the git commit hash the binary was built from.
	GitCommit = "unknown"
)
