// Package version carries build identity, overridable at link time via
// -ldflags "-X aictl/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns a one-line human readable version.
func String() string {
	return fmt.Sprintf("aictl %s (commit %s, built %s, %s/%s)",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}
