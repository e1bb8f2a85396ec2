// Package version carries the build identity stamped into the binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Stamped at build time:
//
//	go build -ldflags "-X github.com/openadas/stk/internal/version.Version=1.4.0 ..."
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, gitSHA(), BuildTime)
}

// gitSHA falls back to the VCS revision recorded by the Go toolchain when
// the build did not stamp one.
func gitSHA() string {
	if GitSHA != "unknown" {
		return GitSHA
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return GitSHA
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return GitSHA
}
