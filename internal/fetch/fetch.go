// Package fetch downloads web pages and reduces them to readable text
// for the web_fetch tool. The extraction helpers are shared with the
// browser tools, which run them over the rendered DOM instead of a raw
// download.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
)

// Defaults applied by New.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxBytes int64 = 5 << 20
	DefaultMaxChars       = 50000
)

const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7"

// Result is one fetched page.
type Result struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url,omitempty"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	Length      int    `json:"length"`
	Truncated   bool   `json:"truncated,omitempty"`

	links []Link
}

// Fetcher downloads pages over plain HTTP, without running scripts.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithMaxBytes caps how much of a response body is read.
func WithMaxBytes(n int64) Option { return func(f *Fetcher) { f.maxBytes = n } }

// New returns a Fetcher with a 30s timeout and a 5 MB body cap.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout)),
		maxBytes: DefaultMaxBytes,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NormalizeURL adds https:// to a bare host and rejects anything that
// is not an http(s) URL with a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u.String(), nil
}

// Fetch downloads rawURL and returns its readable text, cut to maxChars
// runes (0 means DefaultMaxChars). HTTP error statuses are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Result, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: %w", err)
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("web_fetch: %s returned HTTP %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("web_fetch: read body: %w", err)
	}

	res := &Result{
		URL:         target,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if final := resp.Request.URL.String(); final != target {
		res.FinalURL = final
	}

	text, ok := decodeText(body, res.ContentType)
	switch mediaType(res.ContentType) {
	case "text/html", "application/xhtml+xml":
		base := target
		if res.FinalURL != "" {
			base = res.FinalURL
		}
		page := ParsePage(text, base)
		res.Title, res.Content, res.links = page.Title, page.Text, page.Links
	default:
		if !ok {
			res.Content = fmt.Sprintf("Binary content (%s), %d bytes", res.ContentType, len(body))
			res.Length = len(body)
			return res, nil
		}
		res.Content = text
	}

	if utf8.RuneCountInString(res.Content) > maxChars {
		res.Content = TruncateUTF8(res.Content, maxChars)
		res.Truncated = true
	}
	res.Length = len(res.Content)
	return res, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

// decodeText returns body as UTF-8 text. Textual media types are
// transcoded from their declared or sniffed charset; anything else is
// accepted only if it already is valid UTF-8 without NUL bytes.
func decodeText(body []byte, contentType string) (string, bool) {
	if isTextual(mediaType(contentType)) {
		if r, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
			if decoded, err := io.ReadAll(r); err == nil {
				return string(decoded), true
			}
		}
	}
	return string(body), utf8.Valid(body) && bytes.IndexByte(body, 0) < 0
}

func isTextual(mt string) bool {
	switch {
	case strings.HasPrefix(mt, "text/"), strings.HasSuffix(mt, "+xml"), strings.HasSuffix(mt, "+json"):
		return true
	}
	return mt == "application/json" || mt == "application/xml" || mt == "application/javascript"
}

// TruncateUTF8 returns at most maxChars runes of s.
func TruncateUTF8(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
