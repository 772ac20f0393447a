package version

// Build information set by ldflags
var (
	Version = "dev"     // Set by goreleaser: -X github.com/bundlescope/bundlescope/internal/version.Version={{.Version}}
	Commit  = "unknown" // Set by goreleaser: -X github.com/bundlescope/bundlescope/internal/version.Commit={{.Commit}}
	Date    = "unknown" // Set by goreleaser: -X github.com/bundlescope/bundlescope/internal/version.Date={{.Date}}
)
