package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "example.com/a", want: "https://example.com/a"},
		{in: "  http://example.com  ", want: "http://example.com"},
		{in: "https://example.com/?q=1", want: "https://example.com/?q=1"},
		{in: "", wantErr: true},
		{in: "ftp://example.com", wantErr: true},
		{in: "file:///etc/passwd", wantErr: true},
		{in: "https://", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeURL(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetch_HTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Sidekick/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello from test server</p></body></html>`))
	}))
	defer ts.Close()

	res, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "Test" || res.StatusCode != http.StatusOK {
		t.Errorf("result = %+v", res)
	}
	if res.Content != "Hello from test server" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.FinalURL != "" {
		t.Errorf("FinalURL = %q without a redirect", res.FinalURL)
	}
}

func TestFetch_Redirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("moved"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	res, err := New().Fetch(context.Background(), ts.URL+"/old", 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.FinalURL != ts.URL+"/new" || res.Content != "moved" {
		t.Errorf("result = %+v", res)
	}
}

func TestFetch_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := New().Fetch(context.Background(), ts.URL, 0)
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("err = %v, want HTTP 404", err)
	}
}

func TestFetch_Charset(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		w.Write([]byte{'c', 'a', 'f', 0xe9})
	}))
	defer ts.Close()

	res, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Content != "café" {
		t.Errorf("Content = %q, want café", res.Content)
	}
}

func TestFetch_Binary(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0x00, 0xff, 0xfe, 0x01})
	}))
	defer ts.Close()

	res, err := New().Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(res.Content, "Binary content") || res.Length != 4 {
		t.Errorf("result = %+v", res)
	}
}

func TestFetch_Truncation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer ts.Close()

	res, err := New(WithMaxBytes(500)).Fetch(context.Background(), ts.URL, 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Truncated || res.Length != 100 {
		t.Errorf("Truncated = %v, Length = %d", res.Truncated, res.Length)
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Héllo wörld café", 5, "Héllo"},
		{"short", 10, "short"},
		{"日本語テキスト", 3, "日本語"},
	}
	for _, tt := range tests {
		if got := TruncateUTF8(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncateUTF8(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestWebFetchTool(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Tool Test</title></head><body>` +
			`<p>Content here</p><a href="/next">Next</a></body></html>`))
	}))
	defer ts.Close()

	r := tools.NewEmptyRegistry()
	Register(r, New())

	out, err := r.Execute(context.Background(), "web_fetch", `{"url":"`+ts.URL+`","include_links":true}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var got struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Links   []Link `json:"links"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Title != "Tool Test" || !strings.Contains(got.Content, "Content here") {
		t.Errorf("got = %+v", got)
	}
	if len(got.Links) != 1 || got.Links[0].URL != ts.URL+"/next" {
		t.Errorf("links = %+v", got.Links)
	}

	out, err = r.Execute(context.Background(), "web_fetch", `{"url":"`+ts.URL+`"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(out, `"links"`) {
		t.Errorf("links returned without include_links: %s", out)
	}
}

func TestWebFetchTool_MissingURL(t *testing.T) {
	r := tools.NewEmptyRegistry()
	Register(r, New())

	if _, err := r.Execute(context.Background(), "web_fetch", `{}`); err == nil {
		t.Error("expected error for missing URL")
	}
}
