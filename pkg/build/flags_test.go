// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"runtime/debug"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
	origRead    func() (*debug.BuildInfo, bool)
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = info
	origRead = readBuildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	info = origInfo
	readBuildInfo = origRead

	os.Exit(exitCode)
}

func setFlags(name, time, commit, version string) {
	buildName, buildTime, buildCommit, buildVersion = name, time, commit, version
}

func noBuildInfo() (*debug.BuildInfo, bool) { return nil, false }

func TestInitialize_Strict(t *testing.T) {
	readBuildInfo = noBuildInfo
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "testapp", "", "abcdef123", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "testapp", "2025-04-13", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "testapp", "2025-04-13", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "testapp", "2025-04-13", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFlags(tt.buildName, tt.buildTime, tt.buildCommit, tt.buildVer)

			err := Initialize(true)

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			got := Get()
			want := Info{Name: "testapp", Description: description, Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"}
			if got != want {
				t.Errorf("Get() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestInitialize_Fallbacks(t *testing.T) {
	setFlags("", "", "", "")
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v0.3.0"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "feedbeef"},
				{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			},
		}, true
	}

	if err := Initialize(false); err != nil {
		t.Fatal(err)
	}
	got := Get()
	if got.Name != defaultName || got.Version != "v0.3.0" || got.Commit != "feedbeef" || got.Time != "2026-01-02T03:04:05Z" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestInitialize_Unknown(t *testing.T) {
	setFlags("", "", "", "")
	readBuildInfo = noBuildInfo

	if err := Initialize(false); err != nil {
		t.Fatal(err)
	}
	got := Get()
	if got.Version != unknown || got.Commit != unknown || got.Time != unknown {
		t.Errorf("Get() = %+v", got)
	}
	if got.String() != "instruments unknown (commit unknown, built unknown)" {
		t.Errorf("String() = %q", got.String())
	}
}
