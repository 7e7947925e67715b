// Package api implements the Sidekick HTTP API: starting and streaming
// runs, the session catalogue, and the operational event stream.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/agent"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/buildinfo"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/connwatch"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/session"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Runner starts, cancels and resets agent runs.
type Runner interface {
	StartOrResume(ctx context.Context, sessionID, task, criteria string) (<-chan agent.Update, error)
	Cancel(sessionID string) bool
	Active(sessionID string) bool
	Reset(ctx context.Context, sessionID string) error
}

// Sessions is the read and delete surface of the session store.
type Sessions interface {
	List(ctx context.Context, limit int) ([]session.Conversation, error)
	Get(ctx context.Context, id string) (*session.Conversation, error)
	Delete(ctx context.Context, id string) error
	Load(ctx context.Context, id string) (*agent.State, error)
	ListRuns(ctx context.Context, sessionID string, limit int) ([]agent.RunRecord, error)
}

// HealthReporter reports the reachability of external services.
type HealthReporter interface {
	Status() []connwatch.Status
}

// Config wires a Server. Bus and Health are optional.
type Config struct {
	Address  string
	Port     int
	Runner   Runner
	Sessions Sessions
	Bus      *events.Bus
	Health   HealthReporter
	Logger   *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	runner   Runner
	sessions Sessions
	bus      *events.Bus
	health   HealthReporter
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		address:  cfg.Address,
		port:     cfg.Port,
		runner:   cfg.Runner,
		sessions: cfg.Sessions,
		bus:      cfg.Bus,
		health:   cfg.Health,
		logger:   cfg.Logger.With("component", "api"),
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Runs
	mux.HandleFunc("POST /v1/sessions/{id}/run", s.handleRun)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleSessionSocket)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /v1/sessions/{id}/reset", s.handleReset)

	// Session catalogue
	mux.HandleFunc("GET /v1/sessions", s.handleSessionList)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("GET /v1/sessions/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /v1/sessions/{id}/runs", s.handleRuns)

	// Operational events
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.address, strconv.Itoa(s.port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: run streams last as long as the run.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Sidekick",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Get(), s.logger)
}

// handleHealth reports "degraded" while any watched service is
// unreachable. The process itself is up, so the code stays 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	resp := map[string]any{}
	if s.health != nil {
		services := s.health.Status()
		for _, svc := range services {
			if !svc.Ready {
				status = "degraded"
			}
		}
		resp["services"] = services
	}
	resp["status"] = status
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// queryInt parses a positive integer query parameter, returning def
// when absent or invalid.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// sessionID returns the {id} path value, writing a 400 when it is
// unusable.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" || len(id) > 128 {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid session id %q", id))
		return "", false
	}
	return id, true
}
