// Package versions exposes build version information and version
// comparison helpers.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// Version information set by the linker at build time.
var (
	// Version is the release version, set via -ldflags.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the binary's build metadata. When the linker did not
// stamp a commit (go install, tests), it falls back to the VCS information
// embedded by the Go toolchain.
func GetVersionInfo() VersionInfo {
	commit := Commit
	if commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value
					break
				}
			}
		}
	}

	return VersionInfo{
		Version:   Version,
		Commit:    commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// IsNewerVersion reports whether a is strictly newer than b. The ledger's
// API revision header is usually semver; when either side is not, plain
// string ordering decides.
func IsNewerVersion(a, b string) bool {
	av, err := semver.NewVersion(a)
	if err != nil {
		return a > b
	}
	bv, err := semver.NewVersion(b)
	if err != nil {
		return a > b
	}
	return av.GreaterThan(bv)
}
