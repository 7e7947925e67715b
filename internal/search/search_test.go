package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// mockProvider is a simple test provider.
type mockProvider struct {
	name    string
	results []Result
	err     error
	gotOpts Options
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Search(_ context.Context, _ string, opts Options) ([]Result, error) {
	m.gotOpts = opts
	return m.results, m.err
}

func TestManagerSearch(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{
		name:    "mock",
		results: []Result{{Title: "Test", URL: "https://example.com", Snippet: "A test result"}},
	})

	results, err := mgr.Search(context.Background(), "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Test" {
		t.Fatalf("results = %+v", results)
	}
}

func TestManagerSearchWith(t *testing.T) {
	mgr := NewManager("primary")
	mgr.Register(&mockProvider{name: "primary", results: []Result{{Title: "Primary"}}})
	mgr.Register(&mockProvider{name: "secondary", results: []Result{{Title: "Secondary"}}})

	results, err := mgr.SearchWith(context.Background(), "secondary", "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Title != "Secondary" {
		t.Errorf("expected 'Secondary', got %q", results[0].Title)
	}
	if got := strings.Join(mgr.Providers(), ","); got != "primary,secondary" {
		t.Errorf("Providers() = %s", got)
	}
}

func TestManagerUnconfigured(t *testing.T) {
	mgr := NewManager("missing")
	if mgr.Configured() {
		t.Error("empty manager should not be configured")
	}
	if _, err := mgr.Search(context.Background(), "test", Options{}); err == nil {
		t.Fatal("expected error for missing provider")
	}
}

func TestManagerFallback(t *testing.T) {
	down := errors.New("quota exceeded")
	primary := &mockProvider{name: "serper", err: down}
	backup := &mockProvider{name: "searxng", results: []Result{{Title: "Backup", URL: "https://b"}}}

	mgr := NewManager("serper")
	mgr.Register(backup)
	mgr.Register(primary)

	results, err := mgr.Search(context.Background(), "q", Options{Count: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Backup" {
		t.Errorf("results = %+v", results)
	}
	if primary.gotOpts.Count != 3 {
		t.Error("primary was not tried first")
	}

	backup.err = errors.New("instance offline")
	_, err = mgr.Search(context.Background(), "q", Options{})
	if !errors.Is(err, down) || !strings.Contains(err.Error(), "instance offline") {
		t.Errorf("err = %v, want both failures", err)
	}

	if _, err := mgr.SearchWith(context.Background(), "serper", "q", Options{}); !errors.Is(err, down) {
		t.Errorf("SearchWith should not fall back: %v", err)
	}
}

func TestManagerRegisterReplaces(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{name: "mock", results: []Result{{Title: "old"}}})
	mgr.Register(&mockProvider{name: "mock", results: []Result{{Title: "new"}}})
	if got := mgr.Providers(); len(got) != 1 {
		t.Fatalf("Providers() = %v", got)
	}
	results, _ := mgr.Search(context.Background(), "q", Options{})
	if results[0].Title != "new" {
		t.Errorf("results = %+v", results)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]Result{
		{Title: "Answer", Snippet: "42"},
		{Title: "A", URL: "https://a"},
		{Title: "A again", URL: "https://a"},
		{Title: "Answer 2", Snippet: "43"},
		{Title: "B", URL: "https://b"},
	})
	var titles []string
	for _, r := range got {
		titles = append(titles, r.Title)
	}
	if strings.Join(titles, ",") != "Answer,A,Answer 2,B" {
		t.Errorf("dedupe = %v", titles)
	}
}

func TestStripMarkup(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"The <strong>Go</strong> language", "The Go language"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"  spaced   <b>out</b>  ", "spaced out"},
	}
	for _, tt := range tests {
		if got := stripMarkup(tt.in); got != tt.want {
			t.Errorf("stripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatResults(t *testing.T) {
	results := []Result{
		{Title: "First", URL: "https://a.com", Snippet: "Snippet A"},
		{Title: "Answer", Snippet: "2026"},
	}
	want := "1. First\n   https://a.com\n   Snippet A\n\n2. Answer\n   2026"
	if got := FormatResults(results); got != want {
		t.Errorf("FormatResults() = %q, want %q", got, want)
	}
	if got := FormatResults(nil); got != "No results found." {
		t.Errorf("empty = %q", got)
	}
}

func TestSerper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-API-KEY") != "k" {
			t.Errorf("method=%s key=%q", r.Method, r.Header.Get("X-API-KEY"))
		}
		var req serperRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Q != "current year" || req.Num != 2 {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{
			"answerBox": {"answer": "2026"},
			"organic": [
				{"title": "Year", "link": "https://a.example", "snippet": "It is 2026"},
				{"title": "Calendar", "link": "https://b.example", "snippet": "..."}
			]
		}`))
	}))
	defer srv.Close()

	s := NewSerper("k")
	s.endpoint = srv.URL
	results, err := s.Search(context.Background(), "current year", Options{Count: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (answer + 1 organic)", len(results))
	}
	if results[0].Snippet != "2026" || results[1].URL != "https://a.example" {
		t.Errorf("results = %+v", results)
	}
}

func TestSerper_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSerper("wrong")
	s.endpoint = srv.URL
	_, err := s.Search(context.Background(), "x", Options{})
	var se *httpkit.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want StatusError 403", err)
	}
}

func TestSearXNG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			t.Errorf("url = %s", r.URL)
		}
		if r.URL.Query().Get("language") != "de" {
			t.Errorf("language = %q", r.URL.Query().Get("language"))
		}
		w.Write([]byte(`{"results": [
			{"title": "A", "url": "https://a", "content": "a"},
			{"title": "B", "url": "https://b", "content": "b"},
			{"title": "C", "url": "https://c", "content": "c"}
		]}`))
	}))
	defer srv.Close()

	s := NewSearXNG(srv.URL + "/")
	results, err := s.Search(context.Background(), "q", Options{Count: 2, Language: "de"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[1].Title != "B" {
		t.Errorf("results = %+v", results)
	}
}

func TestBrave(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "tok" || r.URL.Query().Get("count") != "5" {
			t.Errorf("token=%q count=%q", r.Header.Get("X-Subscription-Token"), r.URL.Query().Get("count"))
		}
		w.Write([]byte(`{"web": {"results": [
			{"title": "The <strong>Go</strong> site", "url": "https://t", "description": "d"},
			{"title": "U", "url": "https://u", "extra_snippets": ["extra"]}
		]}}`))
	}))
	defer srv.Close()

	b := NewBrave("tok")
	b.endpoint = srv.URL
	results, err := b.Search(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Title != "The Go site" || results[0].Snippet != "d" {
		t.Errorf("results = %+v", results)
	}
	if results[1].Snippet != "extra" {
		t.Errorf("extra snippet not used: %+v", results[1])
	}
}

func TestBrave_CountCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("count"); got != "20" {
			t.Errorf("count = %q, want 20", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	b := NewBrave("tok")
	b.endpoint = srv.URL
	if _, err := b.Search(context.Background(), "q", Options{Count: 50}); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestSearXNG_Answers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answers": ["2026", {"answer": "MMXXVI"}, 7],
			"results": [{"title": "A", "url": "https://a", "content": "a"}]}`))
	}))
	defer srv.Close()

	results, err := NewSearXNG(srv.URL).Search(context.Background(), "year", Options{Count: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Snippet != "2026" || results[1].Snippet != "MMXXVI" {
		t.Errorf("results = %+v", results)
	}
}

func TestRegisterTool(t *testing.T) {
	r := tools.NewEmptyRegistry()
	Register(r, NewManager("none"))
	if r.Get("web_search") != nil {
		t.Fatal("web_search registered without providers")
	}

	mock := &mockProvider{name: "serper", results: []Result{{Title: "Year", URL: "https://a", Snippet: "2026"}}}
	mgr := NewManager("serper")
	mgr.Register(mock)
	Register(r, mgr)

	out, err := r.Execute(context.Background(), "web_search", `{"query":"year","count":50}`)
	if err != nil {
		t.Fatalf("web_search: %v", err)
	}
	if !strings.Contains(out, "2026") {
		t.Errorf("output = %q", out)
	}
	if mock.gotOpts.Count != 10 {
		t.Errorf("count not clamped: %d", mock.gotOpts.Count)
	}

	if _, err := r.Execute(context.Background(), "web_search", `{}`); err == nil {
		t.Error("missing query should fail")
	}
	if _, err := r.Execute(context.Background(), "web_search", `{"query":"x","provider":"brave"}`); err == nil {
		t.Error("unknown provider should fail")
	}
}
