package version

import (
	"fmt"
	"runtime/debug"

	"github.com/standardbeagle/relidx/internal/persist"
)

// Version is the current semantic version of relidx
const Version = "0.1.0"

// Set during build time with -ldflags
var (
	BuildDate = "development"
	GitCommit = "unknown"
)

// Info returns the bare version string
func Info() string {
	return Version
}

// FullInfo returns version, commit, build date and the index file format
func FullInfo() string {
	commit := GitCommit
	if commit == "unknown" {
		if rev := vcsRevision(); rev != "" {
			commit = rev
		}
	}
	return fmt.Sprintf("relidx %s (commit: %s, built: %s, index format v%d)", Version, commit, BuildDate, persist.FormatVersion)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return ""
}
