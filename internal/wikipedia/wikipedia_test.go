package wikipedia

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("list") != "search" || q.Get("srlimit") != "3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if q.Get("srsearch") == "nothing" {
			fmt.Fprint(w, `{"query":{"search":[]}}`)
			return
		}
		fmt.Fprint(w, `{"query":{"search":[{"title":"Alan Turing"},{"title":"Turing machine"},{"title":"Missing page"}]}}`)
	})
	mux.HandleFunc("/api/rest_v1/page/summary/", func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/api/rest_v1/page/summary/") {
		case "Alan_Turing":
			fmt.Fprint(w, `{"type":"standard","title":"Alan Turing","extract":"English mathematician.","content_urls":{"desktop":{"page":"https://en.wikipedia.org/wiki/Alan_Turing"}}}`)
		case "Turing_machine":
			fmt.Fprint(w, `{"type":"standard","title":"Turing machine","extract":"A model of computation."}`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup(t *testing.T) {
	srv := newTestServer(t)
	c := New("en")
	c.baseURL = srv.URL

	got, err := c.Lookup(context.Background(), "turing")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2 (missing page skipped)", len(got))
	}
	if got[0].URL != "https://en.wikipedia.org/wiki/Alan_Turing" {
		t.Errorf("URL = %q", got[0].URL)
	}
}

func TestFormat(t *testing.T) {
	s := []Summary{{Title: "A", Extract: "first"}, {Title: "B", Extract: "second"}}
	if got := Format(s, 4000); got != "Page: A\nSummary: first\n\nPage: B\nSummary: second" {
		t.Errorf("Format() = %q", got)
	}
	if got := Format(s, 7); got != "Page: A" {
		t.Errorf("truncated Format() = %q", got)
	}
	if got := Format(nil, 100); got != "No good Wikipedia Search Result was found" {
		t.Errorf("empty Format() = %q", got)
	}
}

func TestTool(t *testing.T) {
	srv := newTestServer(t)
	c := New("")
	c.baseURL = srv.URL
	r := tools.NewEmptyRegistry()
	Register(r, c)

	out, err := r.Execute(context.Background(), "wikipedia", `{"query":"turing"}`)
	if err != nil {
		t.Fatalf("wikipedia: %v", err)
	}
	if !strings.Contains(out, "Summary: English mathematician.") {
		t.Errorf("output = %q", out)
	}

	out, err = r.Execute(context.Background(), "wikipedia", `{"query":"nothing"}`)
	if err != nil || !strings.HasPrefix(out, "No good") {
		t.Errorf("no results: out=%q err=%v", out, err)
	}

	if _, err := r.Execute(context.Background(), "wikipedia", `{}`); err == nil {
		t.Error("missing query should fail")
	}
}
