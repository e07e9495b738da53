// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Build is the build metadata reported on /status.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Current returns the metadata of the running binary.
func Current() Build {
	return Build{Version: Version, Commit: GitCommit, BuildTime: BuildTime}
}

func (b Build) String() string {
	return fmt.Sprintf("%s (%s) built at %s", b.Version, b.Commit, b.BuildTime)
}
