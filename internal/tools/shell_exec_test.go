package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func enabledShell(t *testing.T) *ShellExec {
	t.Helper()
	cfg := DefaultShellExecConfig()
	cfg.Enabled = true
	cfg.WorkingDir = t.TempDir()
	return NewShellExec(cfg)
}

func TestShellExec_BasicCommand(t *testing.T) {
	se := enabledShell(t)

	result, err := se.Exec(context.Background(), "echo hello", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("expected 'hello\\n', got %q", result.Stdout)
	}
}

func TestShellExec_Disabled(t *testing.T) {
	se := NewShellExec(DefaultShellExecConfig())

	if _, err := se.Exec(context.Background(), "echo hello", 0); err == nil {
		t.Fatal("expected error when disabled")
	}
	if _, err := se.RunPython(context.Background(), "print(1)", 0); err == nil {
		t.Fatal("expected error when disabled")
	}

	r := NewEmptyRegistry()
	se.Register(r)
	if r.Get("run_python") != nil {
		t.Error("run_python registered while disabled")
	}
}

func TestShellExec_DeniedCommand(t *testing.T) {
	se := enabledShell(t)

	if _, err := se.Exec(context.Background(), "rm -rf /", 0); err == nil {
		t.Fatal("expected error for denied command")
	}
	_, err := se.RunPython(context.Background(), "import shutil\nshutil.rmtree('/')", 0)
	if err == nil || !strings.Contains(err.Error(), "denied pattern") {
		t.Fatalf("expected denied-pattern error for python, got %v", err)
	}
}

func TestShellExec_Timeout(t *testing.T) {
	cfg := DefaultShellExecConfig()
	cfg.Enabled = true
	cfg.DefaultTimeout = 1 * time.Second
	se := NewShellExec(cfg)

	result, err := se.Exec(context.Background(), "sleep 10", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timeout")
	}
}

func TestShellExec_NonZeroExit(t *testing.T) {
	se := enabledShell(t)

	result, err := se.Exec(context.Background(), "exit 42", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 42 {
		t.Errorf("expected exit code 42, got %d", result.ExitCode)
	}
}

func TestShellExec_CapturesStderr(t *testing.T) {
	se := enabledShell(t)

	result, err := se.Exec(context.Background(), "echo error >&2", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stderr != "error\n" {
		t.Errorf("expected stderr 'error\\n', got %q", result.Stderr)
	}
}

func TestRunPythonTool(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	se := enabledShell(t)
	r := NewEmptyRegistry()
	se.Register(r)

	out, err := r.Execute(context.Background(), "run_python", `{"code":"print(6*7)"}`)
	if err != nil {
		t.Fatalf("run_python: %v", err)
	}
	if strings.TrimSpace(out) != "42" {
		t.Errorf("output = %q, want 42", out)
	}

	out, err = r.Execute(context.Background(), "run_python", `{"code":"raise SystemExit(3)"}`)
	if err != nil {
		t.Fatalf("run_python: %v", err)
	}
	if !strings.Contains(out, "[exit code 3]") {
		t.Errorf("output = %q, want exit code note", out)
	}

	if _, err := r.Execute(context.Background(), "run_python", `{"code":"  "}`); err == nil {
		t.Error("blank code should be rejected")
	}
}

func TestFormatExecResult(t *testing.T) {
	tests := []struct {
		name string
		res  ExecResult
		want string
	}{
		{"empty", ExecResult{}, "(no output)"},
		{"stdout", ExecResult{Stdout: "hi\n"}, "hi\n"},
		{"stderr", ExecResult{Stdout: "a", Stderr: "boom\n", ExitCode: 1}, "a\n[stderr]\nboom\n\n[exit code 1]"},
		{"timeout", ExecResult{TimedOut: true, ExitCode: -1}, "\n[timed out]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatExecResult(&tt.res); got != tt.want {
				t.Errorf("FormatExecResult() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShellExec_OutputCapped(t *testing.T) {
	cfg := DefaultShellExecConfig()
	cfg.Enabled = true
	cfg.WorkingDir = t.TempDir()
	cfg.MaxOutputBytes = 10
	se := NewShellExec(cfg)

	result, err := se.Exec(context.Background(), "printf 'abcdefghijklmnopqrstuvwxyz'", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "abcdefghij\n\n[... output truncated ...]"; result.Stdout != want {
		t.Errorf("Stdout = %q, want %q", result.Stdout, want)
	}
}

func TestShellExecTimeoutClamp(t *testing.T) {
	se := NewShellExec(ShellExecConfig{DefaultTimeout: 7 * time.Second})
	tests := []struct {
		sec  int
		want time.Duration
	}{
		{0, 7 * time.Second},
		{-3, 7 * time.Second},
		{12, 12 * time.Second},
		{3600, maxExecTimeout},
	}
	for _, tt := range tests {
		if got := se.timeout(tt.sec); got != tt.want {
			t.Errorf("timeout(%d) = %v, want %v", tt.sec, got, tt.want)
		}
	}
}
