/*
Package version reports the lunar-mcp build and checks GitHub for newer
releases.

Release builds set Version, Commit and Date with ldflags, e.g.

	-X github.com/khanglvm/lunar-mcp/internal/version.Version=v0.3.0

Anything else is a development build.
*/
package version

import "fmt"

// devVersion marks a build made without release ldflags.
const devVersion = "dev"

var (
	Version = devVersion
	Commit  = "none"
	Date    = "unknown"
)

// Info describes one build.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current returns the running build.
func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

// Dev reports whether the build carries no release version.
func (i Info) Dev() bool {
	return i.Version == devVersion
}

// String is the human-readable form shown by --version.
func (i Info) String() string {
	if i.Dev() {
		return i.Version + " (development build)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}
