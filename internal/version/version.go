// Package version holds build-time version information.
package version

// Version is the build version, set via -ldflags "-X github.com/aristath/sentinel-gateway/internal/version.Version=..."
// during CI builds. Defaults to "dev" for local builds.
var Version = "dev"

// Commit is the git commit hash, set the same way as Version.
var Commit = "unknown"
