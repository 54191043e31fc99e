// Package version exposes build-time version information.
package version

// Overridden via -ldflags at release build time.
var (
	Version = "dev"
	Commit  = "unknown"
)
