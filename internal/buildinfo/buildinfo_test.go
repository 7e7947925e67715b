package buildinfo

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	d := Get()
	if d.Version != Version || d.GoVersion == "" || d.OS == "" || d.Arch == "" || d.Uptime == "" {
		t.Errorf("Get() = %+v", d)
	}
	if d.Commit == "" {
		t.Error("commit should fall back to unknown, not empty")
	}
}

func TestDetailsFields(t *testing.T) {
	d := Details{Version: "1.2.0", Commit: "abc", Branch: "main", BuildTime: "now", GoVersion: "go1.24", OS: "linux", Arch: "arm64", Uptime: "5s"}
	var keys []string
	for _, f := range d.Fields() {
		keys = append(keys, f[0])
		if f[1] == "" {
			t.Errorf("%s has no value", f[0])
		}
	}
	if got := strings.Join(keys, ","); got != "version,git_commit,git_branch,build_time,go_version,os,arch" {
		t.Errorf("field order = %s", got)
	}
	if got := d.String(); got != "Sidekick 1.2.0 (abc@main) built now" {
		t.Errorf("String() = %q", got)
	}
}

func TestShortRevision(t *testing.T) {
	if got := shortRevision("0123456789abcdef0123"); got != "0123456789ab" {
		t.Errorf("shortRevision = %q", got)
	}
	if got := shortRevision("abc"); got != "abc" {
		t.Errorf("shortRevision = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); !strings.HasPrefix(ua, "Sidekick/"+Version+" ") {
		t.Errorf("UserAgent() = %q", ua)
	}
}
