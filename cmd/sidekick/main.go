// Sidekick is a personal co-worker agent.
//
// A worker model plans and calls tools (browser, search, Wikipedia,
// files, Python, notifications) and an evaluator model judges each
// answer against the user's success criteria, looping until the work
// is accepted, the user is needed, or the iteration budget runs out.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	sidekick serve                  Start the API server
//	sidekick init [dir]             Write a default config into dir
//	sidekick ask <task>             Run one task and stream its progress
//	sidekick sessions               List stored sessions
//	sidekick reset <id>             Clear a session's conversation
//	sidekick version                Print version and build information
//	sidekick -o json version        Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/agent"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/api"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/buildinfo"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/config"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/session"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates to [run], keeping os.Exit and os.Args out of the
// application logic so the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the sidekick command. args is
// os.Args[1:]. Arguments are parsed by hand rather than with the flag
// package so that run has no global state and can be called
// concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			// Everything after the command belongs to it.
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		opts, err := parseAskArgs(cmdArgs)
		if err != nil {
			return err
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, opts)
	case "sessions":
		return runSessions(ctx, stdout, stderr, configPath, outputFmt)
	case "reset":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: sidekick reset <session-id>")
		}
		return runReset(ctx, stdout, stderr, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	d := buildinfo.Get()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	fmt.Fprintln(w, d)
	for _, f := range d.Fields() {
		fmt.Fprintf(w, "  %-12s %s\n", f[0]+":", f[1])
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Sidekick - Personal Co-worker Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: sidekick [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                 Start the API server")
	fmt.Fprintln(w, "  init [dir]            Write a default config.yaml into dir (default: .)")
	fmt.Fprintln(w, "  ask [options] <task>  Run one task and stream its progress")
	fmt.Fprintln(w, "      -session <id>     Continue an existing session (no task resumes it)")
	fmt.Fprintln(w, "      -criteria <text>  Success criteria for the evaluator")
	fmt.Fprintln(w, "  sessions              List stored sessions")
	fmt.Fprintln(w, "  reset <id>            Clear a session's conversation")
	fmt.Fprintln(w, "  version               Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/sidekick/config.yaml, /etc/sidekick/config.yaml")
	return nil
}

// askOptions are the parsed arguments of the ask command.
type askOptions struct {
	sessionID string
	criteria  string
	task      string
}

func parseAskArgs(args []string) (askOptions, error) {
	var opts askOptions
	var words []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-session" && i+1 < len(args):
			opts.sessionID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-session="):
			opts.sessionID = strings.TrimPrefix(args[i], "-session=")
		case args[i] == "-criteria" && i+1 < len(args):
			opts.criteria = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-criteria="):
			opts.criteria = strings.TrimPrefix(args[i], "-criteria=")
		case strings.HasPrefix(args[i], "-") && len(words) == 0:
			return opts, fmt.Errorf("unknown ask flag: %s", args[i])
		default:
			words = append(words, args[i])
		}
	}
	opts.task = strings.TrimSpace(strings.Join(words, " "))
	if opts.task == "" && opts.sessionID == "" {
		return opts, fmt.Errorf("usage: sidekick ask [-session id] [-criteria text] <task>")
	}
	return opts, nil
}

// runAsk runs a single task to completion without the API server and
// streams its updates to stdout. Logs go to stderr so the stream stays
// clean. SIGINT cancels the run; the final update still prints.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, opts askOptions) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(stderr, slog.LevelWarn)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	sessionID := opts.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// The run outlives ctx so that a signal cancels it cleanly instead of
	// dropping the final update.
	updates, err := a.runner.StartOrResume(context.WithoutCancel(ctx), sessionID, opts.task, opts.criteria)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if outputFmt == "text" {
		fmt.Fprintf(stdout, "session %s\n", sessionID)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		a.runner.Cancel(sessionID)
	}()

	var outcome *agent.Outcome
	enc := json.NewEncoder(stdout)
	for u := range updates {
		if outputFmt == "json" {
			if err := enc.Encode(u); err != nil {
				return err
			}
		} else {
			writeUpdate(stdout, u)
		}
		if u.Kind == agent.UpdateFinal {
			outcome = u.Outcome
		}
	}

	if outcome != nil && outcome.Status == agent.PhaseFailed {
		return fmt.Errorf("run failed (%s): %s", outcome.ErrorKind, outcome.Error)
	}
	return nil
}

// writeUpdate renders one update as human-readable text.
func writeUpdate(w io.Writer, u agent.Update) {
	switch u.Kind {
	case agent.UpdatePhase:
		fmt.Fprintf(w, "[%d] %s -> %s\n", u.Iteration, u.From, u.To)
	case agent.UpdateAssistant:
		fmt.Fprintf(w, "[%d] assistant: %s\n", u.Iteration, u.Content)
	case agent.UpdateToolCall:
		args, _ := json.Marshal(u.Args)
		fmt.Fprintf(w, "[%d] tool %s %s\n", u.Iteration, u.Tool, args)
	case agent.UpdateToolResult:
		label := "result"
		if u.IsError {
			label = "error"
		}
		fmt.Fprintf(w, "[%d] %s %s: %s\n", u.Iteration, u.Tool, label, clip(u.Content, 200))
	case agent.UpdateEvaluation:
		if u.Verdict == nil {
			return
		}
		fmt.Fprintf(w, "[%d] evaluator: met=%t needs_user=%t %s\n",
			u.Iteration, u.Verdict.SuccessCriteriaMet, u.Verdict.UserInputNeeded, u.Verdict.Feedback)
	case agent.UpdateFinal:
		if u.Outcome == nil {
			return
		}
		o := u.Outcome
		status := string(o.Status)
		if o.ExhaustReason != "" {
			status += " (" + o.ExhaustReason + ")"
		}
		fmt.Fprintf(w, "\n%s after %d iterations\n", status, o.Iterations)
		if o.FinalMessage != "" {
			fmt.Fprintf(w, "\n%s\n", o.FinalMessage)
		}
	}
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// runSessions lists the session catalogue.
func runSessions(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, nil, cfg.Logger(stderr, slog.LevelWarn))
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(ctx, cfg.Session.MaxSessions)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	return writeSessions(stdout, list, outputFmt)
}

func writeSessions(w io.Writer, list []session.Conversation, outputFmt string) error {
	if outputFmt == "json" {
		if list == nil {
			list = []session.Conversation{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Title, c.MessageCount, c.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// runReset clears a stored session. No run can be active in this
// process, so the store is reset directly.
func runReset(ctx context.Context, stdout, stderr io.Writer, configPath, id string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, nil, cfg.Logger(stderr, slog.LevelWarn))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "session %s reset\n", id)
	return nil
}

// runServe starts the API server and blocks until SIGINT or SIGTERM.
//
// The shutdown sequence is:
//  1. The signal cancels the context
//  2. The HTTP server drains in-flight requests
//  3. The runner cancels active runs and releases the browser
//  4. Service probes stop; MQTT publishes offline and disconnects
//  5. The database closes
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	bi := buildinfo.Get()
	logger.Info("starting Sidekick", "version", bi.Version, "commit", bi.Commit, "branch", bi.Branch, "built", bi.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Everything after the banner uses the configured level and format.
	logger = cfg.Logger(stdout, slog.LevelInfo)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"worker_model", cfg.Agent.WorkerModel,
		"evaluator_model", cfg.Agent.EvaluatorModel,
		"max_iterations", cfg.Agent.MaxIterations,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	monitor := a.watchServices(ctx)
	server := api.NewServer(api.Config{
		Address:  cfg.Listen.Address,
		Port:     cfg.Listen.Port,
		Runner:   a.runner,
		Sessions: a.store,
		Bus:      a.bus,
		Health:   monitor,
		Logger:   logger,
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("api server shutdown failed", "error", err)
		}
		monitor.Stop()
		a.Close(shutdownCtx)
	}()

	err = server.Start(ctx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-stopped
		return fmt.Errorf("server failed: %w", err)
	}
	<-stopped

	logger.Info("Sidekick stopped")
	return nil
}

// loadConfig locates, parses and validates the YAML configuration. If
// explicit is non-empty, that exact path is used and must exist.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
