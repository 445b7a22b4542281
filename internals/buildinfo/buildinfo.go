// Package buildinfo describes the verstamp binary itself.
package buildinfo

import (
	"runtime/debug"
	"strings"
	"sync"
)

// SemVer is set at build time for releases.
//
// Example:
//
//	-ldflags "-X github.com/Oudwins/verstamp/internals/buildinfo.SemVer=1.2.3"
var SemVer = "0.0.0-dev"

var (
	revisionOnce sync.Once
	revisionVal  string
)

// Version returns SemVer with the VCS revision the binary was built from as
// build metadata, e.g. 1.2.3+a1b2c3d4e5f6 or 0.0.0-dev+a1b2c3d4e5f6.dirty.
func Version() string {
	v := strings.TrimSpace(SemVer)
	if v == "" {
		v = "0.0.0-dev"
	}
	rev := Revision()
	if rev == "" {
		return v
	}
	if strings.Contains(v, "+") {
		return v + "." + rev
	}
	return v + "+" + rev
}

// Revision is the short VCS revision recorded by the Go toolchain, with a
// ".dirty" suffix for modified trees. It is empty outside VCS builds.
func Revision() string {
	revisionOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		revisionVal = revisionFromSettings(info.Settings)
	})
	return revisionVal
}

func revisionFromSettings(settings []debug.BuildSetting) string {
	var revision string
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = strings.TrimSpace(s.Value)
		case "vcs.modified":
			v := strings.TrimSpace(strings.ToLower(s.Value))
			dirty = v == "true" || v == "1" || v == "yes"
		}
	}
	if revision == "" {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if dirty {
		revision += ".dirty"
	}
	return revision
}
