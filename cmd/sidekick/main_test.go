package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/agent"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/session"
)

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var stdout, stderr bytes.Buffer
		if err := run(context.Background(), &stdout, &stderr, args); err != nil {
			t.Fatalf("run(%v) error: %v", args, err)
		}
		if !strings.Contains(stdout.String(), "Usage: sidekick") {
			t.Errorf("run(%v) output missing usage:\n%s", args, stdout.String())
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command: frobnicate"},
		{"unknown flag", []string{"-verbose", "version"}, "unknown flag: -verbose"},
		{"bad output format", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"ask without task", []string{"ask"}, "usage: sidekick ask"},
		{"ask bad flag", []string{"ask", "-fast", "hello"}, "unknown ask flag: -fast"},
		{"reset without id", []string{"reset"}, "usage: sidekick reset"},
		{"missing config", []string{"-config", "/nonexistent/sidekick.yaml", "sessions"}, "config file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), &stdout, &stderr, tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestRun_VersionText(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"version"}); err != nil {
		t.Fatal(err)
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "Sidekick ") {
		t.Errorf("output should start with summary line:\n%s", out)
	}
	for _, key := range []string{"version:", "git_commit:", "go_version:"} {
		if !strings.Contains(out, key) {
			t.Errorf("output missing %q:\n%s", key, out)
		}
	}
}

func TestRun_VersionJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-o", "json", "version"}); err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if info["version"] == "" {
		t.Errorf("version missing from %v", info)
	}
}

func TestParseAskArgs(t *testing.T) {
	tests := []struct {
		args []string
		want askOptions
	}{
		{[]string{"find", "the", "weather"}, askOptions{task: "find the weather"}},
		{[]string{"-session", "s1", "hello"}, askOptions{sessionID: "s1", task: "hello"}},
		{[]string{"-session=s1"}, askOptions{sessionID: "s1"}},
		{[]string{"-criteria", "cite sources", "research", "x"}, askOptions{criteria: "cite sources", task: "research x"}},
		{[]string{"-criteria=short", "-session", "s2", "sum", "-1"}, askOptions{sessionID: "s2", criteria: "short", task: "sum -1"}},
	}
	for _, tt := range tests {
		got, err := parseAskArgs(tt.args)
		if err != nil {
			t.Errorf("parseAskArgs(%v) error: %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseAskArgs(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestWriteUpdate(t *testing.T) {
	tests := []struct {
		name string
		u    agent.Update
		want string
	}{
		{
			name: "phase",
			u:    agent.Update{Kind: agent.UpdatePhase, Iteration: 1, From: agent.PhasePlanning, To: agent.PhaseActing},
			want: "[1] PLANNING -> ACTING\n",
		},
		{
			name: "tool call",
			u:    agent.Update{Kind: agent.UpdateToolCall, Iteration: 2, Tool: "web_search", Args: map[string]any{"query": "go"}},
			want: `[2] tool web_search {"query":"go"}` + "\n",
		},
		{
			name: "tool error",
			u:    agent.Update{Kind: agent.UpdateToolResult, Iteration: 2, Tool: "fetch", Content: "boom\nline", IsError: true},
			want: "[2] fetch error: boom line\n",
		},
		{
			name: "evaluation",
			u: agent.Update{Kind: agent.UpdateEvaluation, Iteration: 3,
				Verdict: &agent.Verdict{Feedback: "needs units", SuccessCriteriaMet: false}},
			want: "[3] evaluator: met=false needs_user=false needs units\n",
		},
		{
			name: "final",
			u: agent.Update{Kind: agent.UpdateFinal, Outcome: &agent.Outcome{
				Status: agent.PhaseExhausted, ExhaustReason: agent.ExhaustMaxIterations, Iterations: 5, FinalMessage: "partial"}},
			want: "\nEXHAUSTED (max_iterations) after 5 iterations\n\npartial\n",
		},
		{
			name: "evaluation without verdict",
			u:    agent.Update{Kind: agent.UpdateEvaluation},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeUpdate(&buf, tt.u)
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Errorf("clip = %q", got)
	}
	if got := clip(strings.Repeat("a", 12), 10); got != strings.Repeat("a", 10)+"..." {
		t.Errorf("clip = %q", got)
	}
}

func TestWriteSessions(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSessions(&buf, nil, "text"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "no sessions\n" {
		t.Errorf("empty text = %q", buf.String())
	}

	buf.Reset()
	if err := writeSessions(&buf, nil, "json"); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty json = %q", buf.String())
	}

	buf.Reset()
	list := []session.Conversation{{ID: "abc", Title: "Find the weather", MessageCount: 4, UpdatedAt: time.Now()}}
	if err := writeSessions(&buf, list, "text"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ID", "TITLE", "abc", "Find the weather", "4"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

// writeTestConfig writes a config using the pure-Go SQLite driver with
// its data directory under t.TempDir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "data_dir: " + filepath.Join(dir, "data") + "\n" +
		"workspace:\n  path: " + filepath.Join(dir, "sandbox") + "\n" +
		"database:\n  driver: sqlite\n" +
		"log_level: error\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_SessionsAndReset(t *testing.T) {
	cfgPath := writeTestConfig(t)
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	if err := run(ctx, &stdout, &stderr, []string{"-config", cfgPath, "sessions"}); err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if stdout.String() != "no sessions\n" {
		t.Errorf("sessions output = %q", stdout.String())
	}

	stdout.Reset()
	if err := run(ctx, &stdout, &stderr, []string{"-config", cfgPath, "-o", "json", "sessions"}); err != nil {
		t.Fatalf("sessions json: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "[]" {
		t.Errorf("sessions json = %q", stdout.String())
	}

	stdout.Reset()
	if err := run(ctx, &stdout, &stderr, []string{"-config", cfgPath, "reset", "abc"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if stdout.String() != "session abc reset\n" {
		t.Errorf("reset output = %q", stdout.String())
	}
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	for _, sub := range []string{"data", "sandbox"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", sub, err)
		}
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if !strings.Contains(string(data), "worker_model") {
		t.Error("config.yaml does not look like the example config")
	}

	// A second init leaves edits alone.
	if err := os.WriteFile(cfgPath, []byte("listen:\n  port: 9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := runInit(&buf, dir); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(cfgPath)
	if string(data) != "listen:\n  port: 9999\n" {
		t.Errorf("config overwritten: %q", data)
	}
}
