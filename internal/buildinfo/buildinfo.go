// Package buildinfo reports the version Sidekick was built as. The
// ldflags-stamped variables win; otherwise the VCS stamp that the Go
// toolchain embeds is used.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Set with -ldflags "-X .../buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var started = time.Now()

// Details is the build and runtime description served by the version
// command and the /v1/version endpoint.
type Details struct {
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	Branch    string `json:"git_branch"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Uptime    string `json:"uptime,omitempty"`
}

var vcs = sync.OnceValues(func() (revision, committed string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			committed = s.Value
		}
	}
	return revision, committed
})

// Get returns the current details. Uptime is measured from package
// initialization.
func Get() Details {
	d := Details{
		Version:   Version,
		Commit:    GitCommit,
		Branch:    GitBranch,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Uptime:    Uptime().String(),
	}
	if rev, at := vcs(); rev != "" {
		if d.Commit == "unknown" {
			d.Commit = shortRevision(rev)
		}
		if d.BuildTime == "unknown" && at != "" {
			d.BuildTime = at
		}
	}
	return d
}

// Fields returns the details as ordered label/value pairs for text
// output. Uptime is left out.
func (d Details) Fields() [][2]string {
	return [][2]string{
		{"version", d.Version},
		{"git_commit", d.Commit},
		{"git_branch", d.Branch},
		{"build_time", d.BuildTime},
		{"go_version", d.GoVersion},
		{"os", d.OS},
		{"arch", d.Arch},
	}
}

func (d Details) String() string {
	return fmt.Sprintf("Sidekick %s (%s@%s) built %s", d.Version, d.Commit, d.Branch, d.BuildTime)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// Uptime returns the time since process start, to the second.
func Uptime() time.Duration {
	return time.Since(started).Truncate(time.Second)
}

// UserAgent is sent on every outbound HTTP request.
func UserAgent() string {
	return "Sidekick/" + Version + " (+https://github.com/pranavpai/Sidekick-Langraph-Agent)"
}
