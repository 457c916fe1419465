// Package version provides version information for the foundry CLI.
//
// Overview:
//   - Responsibility: CLI version metadata (version, commit, build time)
//   - Key Types: Info
//   - Concurrency Model: Variables are set at link time and only read afterwards
//   - Error Semantics: No errors
//   - Performance Notes: Zero-cost lookups
//
// Usage:
//
//	go build -ldflags "-X go.eggybyte.com/foundry/cli/internal/version.Version=v0.1.0"
//	fmt.Println(version.String())
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the CLI version. Release builds set it with -ldflags.
var Version = "dev"

// Commit is the git commit hash. Release builds set it with -ldflags.
var Commit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
var BuildTime = "unknown"

// Info is the structured form of the version metadata, used for --json output.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the version metadata. Development builds fall back to the
// module version and VCS revision recorded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if Version != "dev" {
		return info
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// String returns the one-line version string:
// foundry version v0.1.0 (commit 4a9b2c1, built 2026-01-31T12:10:00Z)
func String() string {
	return Get().String()
}

// String formats i as a single line.
func (i Info) String() string {
	return fmt.Sprintf("foundry version %s (commit %s, built %s)", i.Version, i.Commit, i.BuildTime)
}

// Full returns multi-line version information including the Go runtime.
//
// Returns:
//   - string: Version line followed by the go version line
func Full() string {
	i := Get()
	return fmt.Sprintf("%s\ngo version %s (%s)", i, i.GoVersion, i.Platform)
}
