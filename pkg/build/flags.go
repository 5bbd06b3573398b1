// SPDX-License-Identifier: MIT
//
// Package build carries the metadata embedded at link time:
//
//	go build -ldflags "-X instruments/pkg/build.buildName=instruments \
//	    -X instruments/pkg/build.buildVersion=0.1.0 \
//	    -X instruments/pkg/build.buildCommit=$(git rev-parse HEAD) \
//	    -X instruments/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Flags left empty fall back to the module and VCS stamps the Go toolchain
// records, then to "unknown".
package build

import (
	"fmt"
	"runtime/debug"
)

const (
	defaultName = "instruments"
	description = "Sequenced synth and sampler engine"
	unknown     = "unknown"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var readBuildInfo = debug.ReadBuildInfo

var info = Info{
	Name:        defaultName,
	Description: description,
	Time:        unknown,
	Commit:      unknown,
	Version:     unknown,
}

// Initialize resolves the build information. Call once at startup, before
// Get. Strict requires every ldflag to be set and reports the first one
// missing.
func Initialize(strict bool) error {
	flags := []struct {
		name  string
		value string
	}{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	}
	if strict {
		for _, f := range flags {
			if f.value == "" {
				return fmt.Errorf("%s is required", f.name)
			}
		}
	}

	resolved := Info{
		Name:        firstNonEmpty(buildName, defaultName),
		Description: description,
		Time:        firstNonEmpty(buildTime, unknown),
		Commit:      firstNonEmpty(buildCommit, unknown),
		Version:     firstNonEmpty(buildVersion, unknown),
	}

	if bi, ok := readBuildInfo(); ok {
		if resolved.Version == unknown && bi.Main.Version != "" {
			resolved.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if resolved.Commit == unknown {
					resolved.Commit = s.Value
				}
			case "vcs.time":
				if resolved.Time == unknown {
					resolved.Time = s.Value
				}
			}
		}
	}

	info = resolved
	return nil
}

// Get returns the resolved build information.
func Get() Info {
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
