package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version information - set at build time via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Short returns the version, falling back to the module version recorded
// by `go install` when no ldflags were given.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// Info returns formatted version information
func Info() string {
	return fmt.Sprintf("tapcheck version %s\n  commit: %s\n  built: %s\n  go: %s\n  os/arch: %s/%s",
		Short(), Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the User-Agent sent to upstream servers.
func UserAgent() string {
	return "tapcheck/" + Short()
}
