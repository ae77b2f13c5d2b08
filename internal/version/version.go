package version

import (
	"fmt"
	"runtime"
)

// Build information. Populated at build-time via ldflags.
var (
	Version   = "dev"             // Version is the semantic version (e.g., "1.2.3")
	GitCommit = "unknown"         // GitCommit is the git commit hash
	BuildDate = "unknown"         // BuildDate is the build timestamp
	GoVersion = runtime.Version() // GoVersion is the Go version used to build
)

// Info is the JSON shape reported by /api/health and `nixpdf version`.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}

// String returns a human-readable version string
func String() string {
	commit := GitCommit[:min(7, len(GitCommit))]
	prefix := "v"
	if Version == "dev" {
		prefix = ""
	}
	return fmt.Sprintf("nixpdf %s%s (commit %s, built %s with %s)", prefix, Version, commit, BuildDate, GoVersion)
}
