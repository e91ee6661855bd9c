package version

import "testing"

func TestInfo_String(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"version only", Info{Version: "1.4.0"}, "1.4.0"},
		{"with commit", Info{Version: "1.4.0", Commit: "abc1234"}, "1.4.0-abc1234"},
		{"dirty", Info{Version: "dev", Commit: "abc1234", Dirty: true}, "dev-abc1234-dirty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo_IsRelease(t *testing.T) {
	tests := []struct {
		info Info
		want bool
	}{
		{Info{Version: "dev"}, false},
		{Info{Version: "1.4.0"}, true},
		{Info{Version: "1.4.0", Dirty: true}, false},
		{Info{}, false},
	}
	for _, tt := range tests {
		if got := tt.info.IsRelease(); got != tt.want {
			t.Errorf("%+v.IsRelease() = %v, want %v", tt.info, got, tt.want)
		}
	}
}

func TestGet_LinkedValues(t *testing.T) {
	origVersion, origCommit, origBuild := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = origVersion, origCommit, origBuild })

	Version = "2.0.0"
	Commit = "0123456789abcdef"
	BuildTime = "2026-01-02T03:04:05Z"

	info := Get()
	if info.Version != "2.0.0" {
		t.Errorf("Version = %q", info.Version)
	}
	if info.Commit != "0123456" {
		t.Errorf("Commit = %q, want shortened to 7 chars", info.Commit)
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Errorf("BuildTime = %q", info.BuildTime)
	}
}
