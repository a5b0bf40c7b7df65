// Package version reports build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders one line of build metadata. A dev build installed with
// go install falls back to the module version recorded in the binary.
func String() string {
	return fmt.Sprintf("inkwell %s (commit=%s, date=%s, go=%s)", resolved(), Commit, Date, runtime.Version())
}

func resolved() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return Version
	}
	return info.Main.Version
}
