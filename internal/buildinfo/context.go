// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import "runtime/debug"

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Values set with -ldflags "-X github.com/tphakala/birda/internal/buildinfo.version=..."
var (
	version   string
	commit    string
	buildDate string
)

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	Version() string
	Commit() string
	BuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	commit    string
	buildDate string
}

var _ BuildInfo = (*Context)(nil)

// NewContext creates a Context from explicit values.
func NewContext(version, commit, buildDate string) *Context {
	return &Context{version: version, commit: commit, buildDate: buildDate}
}

// Current returns the metadata of the running binary. Values not injected
// at link time fall back to the module build information.
func Current() *Context {
	c := NewContext(version, commit, buildDate)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return c
	}
	if c.version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		c.version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if c.commit == "" {
				c.commit = s.Value
			}
		case "vcs.time":
			if c.buildDate == "" {
				c.buildDate = s.Value
			}
		}
	}
	return c
}

// Version returns the release version.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// Commit returns the source revision, shortened to 12 characters.
func (c *Context) Commit() string {
	if c == nil || c.commit == "" {
		return UnknownValue
	}
	if len(c.commit) > 12 {
		return c.commit[:12]
	}
	return c.commit
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}
