// Package version carries the build metadata stamped into the binary at
// link time:
//
//	-ldflags "-X embedqueue/internal/version.version=v1.0.0 -X embedqueue/internal/version.commit=abc123 -X embedqueue/internal/version.buildTime=2025-01-01T00:00:00Z"
//
// Unstamped builds report "dev".
package version

import (
	"fmt"
	"io"
	"time"
)

//nolint:gochecknoglobals // set via ldflags at link time
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is the display name used in full version output.
const ApplicationName = "EmbedQueue CLI"

// Defaults reported when a field was not stamped at build time.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// Info is a snapshot of the build metadata with defaults applied.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Get returns the current build metadata, substituting defaults for any
// field left unset by the linker.
func Get() Info {
	info := Info{Version: version, Commit: commit, BuildTime: buildTime}
	if info.Version == "" {
		info.Version = DefaultVersion
	}
	if info.Commit == "" {
		info.Commit = DefaultCommit
	}
	if info.BuildTime == "" {
		info.BuildTime = DefaultBuildTime
	}
	return info
}

// Short returns only the version number.
func (i Info) Short() string {
	return i.Version
}

// Full returns the multi-line output used by the version command.
func (i Info) Full() string {
	return fmt.Sprintf("%s\nVersion: %s\nCommit: %s\nBuilt: %s\n",
		ApplicationName, i.Version, i.Commit, i.BuildTime)
}

// Write renders either the short or the full format to w.
func (i Info) Write(w io.Writer, short bool) error {
	var err error
	if short {
		_, err = fmt.Fprintln(w, i.Short())
	} else {
		_, err = fmt.Fprint(w, i.Full())
	}
	return err
}

// IsDevelopment reports whether this is an unstamped build.
func (i Info) IsDevelopment() bool {
	return i.Version == DefaultVersion
}

// BuildTimestamp parses the stamped build time. It returns the zero time
// when the field is unset or not RFC3339.
func (i Info) BuildTimestamp() time.Time {
	t, err := time.Parse(time.RFC3339, i.BuildTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetBuildVars overrides the stamped metadata. Tests use this; builds use
// ldflags.
func SetBuildVars(ver, com, built string) {
	version = ver
	commit = com
	buildTime = built
}

// ResetBuildVars clears the stamped metadata back to the unstamped state.
func ResetBuildVars() {
	version = ""
	commit = ""
	buildTime = ""
}
