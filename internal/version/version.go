// Package version holds build metadata reported by GET /version.
package version

// Build metadata, overridden at link time with
// -ldflags "-X github.com/bissquit/resilio/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
