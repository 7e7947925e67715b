package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/agent"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/session"
)

// SessionDetail is a catalogue entry with its live state.
type SessionDetail struct {
	session.Conversation
	Active        bool        `json:"active"`
	Phase         agent.Phase `json:"phase,omitempty"`
	Iteration     int         `json:"iteration,omitempty"`
	Task          string      `json:"task,omitempty"`
	ExhaustReason string      `json:"exhaust_reason,omitempty"`
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if list == nil {
		list = []session.Conversation{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"sessions": list, "count": len(list)}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	conv, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	detail := SessionDetail{Conversation: *conv, Active: s.runner.Active(id)}
	st, err := s.sessions.Load(r.Context(), id)
	if err != nil {
		s.logger.Warn("load session state failed", "session", id, "error", err)
	}
	if st != nil {
		detail.Phase = st.Phase
		detail.Iteration = st.Iteration
		detail.Task = st.Task
		detail.ExhaustReason = st.ExhaustReason
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, detail, s.logger)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if s.runner.Active(id) {
		s.errorResponse(w, http.StatusConflict, "session has an active run")
		return
	}
	err := s.sessions.Delete(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("delete session failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	runs, err := s.sessions.ListRuns(r.Context(), id, queryInt(r, "limit", 20))
	if err != nil {
		s.logger.Error("list runs failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []agent.RunRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"session_id": id, "runs": runs}, s.logger)
}

// handleTranscript renders the session's conversation as an HTML page.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	st, err := s.sessions.Load(r.Context(), id)
	if err != nil {
		s.logger.Error("load session state failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if st == nil {
		s.errorResponse(w, http.StatusNotFound, "session has no conversation")
		return
	}

	title := id
	if conv, err := s.sessions.Get(r.Context(), id); err == nil {
		title = conv.Title
	}

	page, err := renderTranscript(title, st)
	if err != nil {
		s.logger.Error("render transcript failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to render transcript")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

var transcriptMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// transcriptMarkdownSource turns the conversation into a markdown
// document. Message bodies are markdown already; tool traffic goes in
// fenced blocks.
func transcriptMarkdownSource(st *agent.State) string {
	var b strings.Builder
	for _, m := range st.Messages {
		switch m.Role {
		case llm.RoleUser:
			if strings.HasPrefix(m.Content, agent.FeedbackPrefix) {
				fmt.Fprintf(&b, "#### Evaluator\n\n> %s\n\n", strings.TrimSpace(strings.TrimPrefix(m.Content, agent.FeedbackPrefix)))
				continue
			}
			fmt.Fprintf(&b, "### User\n\n%s\n\n", m.Content)
		case llm.RoleAssistant:
			b.WriteString("### Assistant\n\n")
			if strings.TrimSpace(m.Content) != "" {
				b.WriteString(m.Content)
				b.WriteString("\n\n")
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.MarshalIndent(tc.Function.Arguments, "", "  ")
				fmt.Fprintf(&b, "Calling `%s`:\n\n```json\n%s\n```\n\n", tc.Function.Name, args)
			}
		case llm.RoleTool:
			fmt.Fprintf(&b, "#### Tool result\n\n```\n%s\n```\n\n", strings.ReplaceAll(m.Content, "```", "'''"))
		}
	}
	if st.Phase.Terminal() {
		fmt.Fprintf(&b, "---\n\n*Run ended %s after %d iterations.*\n", st.Phase, st.Iteration)
	}
	return b.String()
}

func renderTranscript(title string, st *agent.State) ([]byte, error) {
	var body bytes.Buffer
	if err := transcriptMarkdown.Convert([]byte(transcriptMarkdownSource(st)), &body); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 52em; margin: 2em auto; padding: 0 1em; line-height: 1.5; color: #222; }
pre { background: #f6f8fa; padding: 0.8em; overflow-x: auto; border-radius: 4px; }
blockquote { border-left: 3px solid #d0a000; margin-left: 0; padding-left: 1em; color: #555; }
h3 { border-bottom: 1px solid #eee; padding-bottom: 0.2em; }
</style>
</head>
<body>
<h1>%s</h1>
`, html.EscapeString(title), html.EscapeString(title))
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}
