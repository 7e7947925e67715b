package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellExec runs interpreter processes in the workspace. Each run has a
// timeout and capped output, and its source is screened against denied
// patterns first.
type ShellExec struct {
	enabled        bool
	python         string
	workingDir     string
	deniedPatterns []string
	defaultTimeout time.Duration
	maxOutputBytes int
}

// ShellExecConfig configures the executor.
type ShellExecConfig struct {
	Enabled        bool
	Python         string
	WorkingDir     string
	DeniedPatterns []string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// DefaultShellExecConfig returns safe defaults.
func DefaultShellExecConfig() ShellExecConfig {
	return ShellExecConfig{
		Enabled: false, // disabled by default
		Python:  "python3",
		DeniedPatterns: []string{
			"rm -rf /",
			"rm -rf /*",
			"mkfs",
			"dd if=",
			"> /dev/sd",
			"chmod -R 777 /",
			":(){ :|:& };:",
			"shutil.rmtree('/')",
			`shutil.rmtree("/")`,
		},
		DefaultTimeout: 30 * time.Second,
		MaxOutputBytes: 100 * 1024,
	}
}

// NewShellExec creates a new executor.
func NewShellExec(cfg ShellExecConfig) *ShellExec {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 100 * 1024
	}
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	return &ShellExec{
		enabled:        cfg.Enabled,
		python:         cfg.Python,
		workingDir:     cfg.WorkingDir,
		deniedPatterns: cfg.DeniedPatterns,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutputBytes: cfg.MaxOutputBytes,
	}
}

// Enabled reports whether execution is available.
func (s *ShellExec) Enabled() bool {
	return s.enabled
}

// ExecResult contains the result of a process execution.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	TimedOut bool   `json:"timedOut,omitempty"`
	Error    string `json:"error,omitempty"`
}

// maxExecTimeout bounds any per-call timeout a model asks for.
const maxExecTimeout = 5 * time.Minute

// RunPython executes code with the configured interpreter, feeding it on
// stdin.
func (s *ShellExec) RunPython(ctx context.Context, code string, timeoutSec int) (*ExecResult, error) {
	return s.run(ctx, code, timeoutSec, s.python, "-")
}

// Exec executes a shell command via sh -c.
func (s *ShellExec) Exec(ctx context.Context, command string, timeoutSec int) (*ExecResult, error) {
	return s.run(ctx, "", timeoutSec, "sh", "-c", command)
}

// screen returns an error naming the first denied pattern found in the
// program text. Matching ignores case.
func (s *ShellExec) screen(text string) error {
	text = strings.ToLower(text)
	for _, denied := range s.deniedPatterns {
		if strings.Contains(text, strings.ToLower(denied)) {
			return fmt.Errorf("blocked by security policy: matches denied pattern %q", denied)
		}
	}
	return nil
}

func (s *ShellExec) timeout(sec int) time.Duration {
	if sec <= 0 {
		return s.defaultTimeout
	}
	return min(time.Duration(sec)*time.Second, maxExecTimeout)
}

func (s *ShellExec) run(ctx context.Context, stdin string, timeoutSec int, name string, args ...string) (*ExecResult, error) {
	if !s.enabled {
		return nil, fmt.Errorf("code execution is disabled")
	}
	if err := s.screen(stdin + "\n" + strings.Join(args, " ")); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout(timeoutSec))
	defer cancel()

	stdout := &cappedBuffer{limit: s.maxOutputBytes}
	stderr := &cappedBuffer{limit: s.maxOutputBytes}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = s.workingDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	// Grandchildren can hold the pipes open after the kill.
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	res := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Error = "execution timed out"
		res.ExitCode = -1
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.Error = err.Error()
		res.ExitCode = -1
	}
	return res, nil
}

// Register adds run_python to r when execution is enabled.
func (s *ShellExec) Register(r *Registry) {
	if !s.enabled {
		return
	}
	r.Register(&Tool{
		Name: "run_python",
		Description: "Execute Python code and return what it prints. Use print() to see results; " +
			"the working directory is the workspace.",
		Parameters: Schema(map[string]any{
			"code":        Prop("string", "Python source to run"),
			"timeout_sec": Prop("integer", "Optional timeout in seconds"),
		}, "code"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			code := StringArg(args, "code")
			if strings.TrimSpace(code) == "" {
				return "", fmt.Errorf("code is required")
			}
			res, err := s.RunPython(ctx, code, IntArg(args, "timeout_sec", 0))
			if err != nil {
				return "", err
			}
			return FormatExecResult(res), nil
		},
	})
}

// FormatExecResult renders a result for the model.
func FormatExecResult(res *ExecResult) string {
	var b strings.Builder
	b.WriteString(res.Stdout)
	if res.Stderr != "" {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("[stderr]\n")
		b.WriteString(res.Stderr)
	}
	switch {
	case res.TimedOut:
		b.WriteString("\n[timed out]")
	case res.Error != "":
		fmt.Fprintf(&b, "\n[error: %s]", res.Error)
	case res.ExitCode != 0:
		fmt.Fprintf(&b, "\n[exit code %d]", res.ExitCode)
	}
	if b.Len() == 0 {
		return "(no output)"
	}
	return b.String()
}

// cappedBuffer keeps the first limit bytes written to it and discards
// the rest, so a chatty process cannot exhaust memory.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room < len(p) {
		c.truncated = true
		c.buf.Write(p[:max(room, 0)])
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n\n[... output truncated ...]"
	}
	return c.buf.String()
}
