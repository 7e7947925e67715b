package browser

import (
	"errors"
	"testing"
)

func fakeEnv(vars map[string]string, files map[string]string, goos string) environment {
	return environment{
		getenv: func(k string) string { return vars[k] },
		readFile: func(p string) ([]byte, error) {
			if s, ok := files[p]; ok {
				return []byte(s), nil
			}
			return nil, errors.New("not found")
		},
		exists: func(p string) bool {
			_, ok := files[p]
			return ok
		},
		goos: goos,
	}
}

func TestDetectHeadless(t *testing.T) {
	tests := []struct {
		name       string
		override   *bool
		vars       map[string]string
		files      map[string]string
		goos       string
		want       bool
		wantReason string
	}{
		{
			name:       "config override wins over container",
			override:   boolPtr(false),
			files:      map[string]string{"/.dockerenv": ""},
			goos:       "linux",
			want:       false,
			wantReason: "config",
		},
		{
			name:       "env override",
			vars:       map[string]string{"SIDEKICK_HEADLESS": "true", "DISPLAY": ":0"},
			goos:       "linux",
			want:       true,
			wantReason: "env",
		},
		{
			name:       "unparseable env ignored",
			vars:       map[string]string{"SIDEKICK_HEADLESS": "maybe", "DISPLAY": ":0"},
			goos:       "linux",
			want:       false,
			wantReason: "display",
		},
		{
			name:       "dockerenv",
			vars:       map[string]string{"DISPLAY": ":0"},
			files:      map[string]string{"/.dockerenv": ""},
			goos:       "linux",
			want:       true,
			wantReason: "container",
		},
		{
			name:       "kubepods cgroup",
			vars:       map[string]string{"DISPLAY": ":0"},
			files:      map[string]string{"/proc/1/cgroup": "0::/kubepods/besteffort/pod1"},
			goos:       "linux",
			want:       true,
			wantReason: "container",
		},
		{
			name:       "container env var",
			vars:       map[string]string{"container": "podman", "DISPLAY": ":0"},
			goos:       "linux",
			want:       true,
			wantReason: "container",
		},
		{
			name:       "linux without display",
			files:      map[string]string{"/proc/1/cgroup": "0::/init.scope"},
			goos:       "linux",
			want:       true,
			wantReason: "no_display",
		},
		{
			name:       "linux with wayland",
			vars:       map[string]string{"WAYLAND_DISPLAY": "wayland-0"},
			goos:       "linux",
			want:       false,
			wantReason: "display",
		},
		{
			name:       "darwin is headed",
			goos:       "darwin",
			want:       false,
			wantReason: "display",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := detectHeadless(tt.override, fakeEnv(tt.vars, tt.files, tt.goos))
			if got != tt.want || reason != tt.wantReason {
				t.Errorf("detectHeadless() = (%v, %q), want (%v, %q)", got, reason, tt.want, tt.wantReason)
			}
		})
	}
}
