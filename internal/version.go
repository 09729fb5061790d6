package internal

import (
	"fmt"
	"runtime"
)

// Version is the current roomrelay release. Release builds override it with
// -ldflags "-X roomrelay/internal.Version=...".
var Version = "0.3.0"

// VersionString is what `roomrelay version` prints.
func VersionString() string {
	return fmt.Sprintf("roomrelay v%s (%s, %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
