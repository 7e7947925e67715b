package browser

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// environment is the slice of the host that headless detection reads.
type environment struct {
	getenv   func(string) string
	readFile func(string) ([]byte, error)
	exists   func(string) bool
	goos     string
}

func hostEnvironment() environment {
	return environment{
		getenv:   os.Getenv,
		readFile: os.ReadFile,
		exists: func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
		goos: runtime.GOOS,
	}
}

// DetectHeadless decides whether the browser should run without a window.
// The returned reason names the rule that decided it.
func DetectHeadless(override *bool) (bool, string) {
	return detectHeadless(override, hostEnvironment())
}

func detectHeadless(override *bool, env environment) (bool, string) {
	if override != nil {
		return *override, "config"
	}
	if v := strings.TrimSpace(env.getenv("SIDEKICK_HEADLESS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b, "env"
		}
	}
	if inContainer(env) {
		return true, "container"
	}
	if env.goos == "linux" && env.getenv("DISPLAY") == "" && env.getenv("WAYLAND_DISPLAY") == "" {
		return true, "no_display"
	}
	return false, "display"
}

func inContainer(env environment) bool {
	if env.exists("/.dockerenv") {
		return true
	}
	if env.getenv("container") != "" {
		return true
	}
	data, err := env.readFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	s := string(data)
	for _, marker := range []string{"docker", "kubepods", "containerd", "lxc"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
