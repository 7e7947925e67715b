package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/fetch"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// maxPageChars caps extract_text output.
const maxPageChars = 20000

// Register adds the browsing tools backed by m to r.
func Register(r *tools.Registry, m *Manager) {
	r.Register(&tools.Tool{
		Name:        "navigate_browser",
		Description: "Navigate the shared browser to a URL. Use this before extract_text, extract_hyperlinks, get_elements or click_element.",
		Parameters: tools.Schema(map[string]any{
			"url": tools.Prop("string", "Absolute http(s) URL"),
		}, "url"),
		Handler: m.navigate,
	})

	r.Register(&tools.Tool{
		Name:        "previous_webpage",
		Description: "Navigate back to the previous page in the browser history.",
		Parameters:  tools.Schema(map[string]any{}),
		Handler:     m.previous,
	})

	r.Register(&tools.Tool{
		Name:        "current_webpage",
		Description: "Return the URL of the page the browser is showing.",
		Parameters:  tools.Schema(map[string]any{}),
		Handler:     m.current,
	})

	r.Register(&tools.Tool{
		Name:        "extract_text",
		Description: "Extract the readable text of the current page.",
		Parameters:  tools.Schema(map[string]any{}),
		Handler:     m.extractText,
	})

	r.Register(&tools.Tool{
		Name:        "extract_hyperlinks",
		Description: "List the hyperlinks on the current page as a JSON array.",
		Parameters: tools.Schema(map[string]any{
			"absolute_urls": tools.Prop("boolean", "Resolve relative links against the page URL"),
		}),
		Handler: m.extractHyperlinks,
	})

	r.Register(&tools.Tool{
		Name:        "get_elements",
		Description: "Select elements on the current page with a CSS selector and return their attributes as JSON.",
		Parameters: tools.Schema(map[string]any{
			"selector": tools.Prop("string", "CSS selector, e.g. 'h2 a'"),
			"attributes": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Attributes to return (default: innerText)",
			},
		}, "selector"),
		Handler: m.getElements,
	})

	r.Register(&tools.Tool{
		Name:        "click_element",
		Description: "Click the first visible element matching a CSS selector on the current page.",
		Parameters: tools.Schema(map[string]any{
			"selector": tools.Prop("string", "CSS selector of the element to click"),
		}, "selector"),
		Handler: m.clickElement,
	})
}

func (m *Manager) navigate(ctx context.Context, args map[string]any) (string, error) {
	raw := strings.TrimSpace(tools.StringArg(args, "url"))
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("url must be an absolute http or https URL: %q", raw)
	}

	var status int
	err = m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		var err error
		status, err = b.Navigate(ctx, u.String())
		return err
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Navigating to %s returned status code %d", u, status), nil
}

func (m *Manager) previous(ctx context.Context, _ map[string]any) (string, error) {
	var loc string
	err := m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		if err := b.Back(ctx); err != nil {
			return fmt.Errorf("unable to navigate back: %w", err)
		}
		var err error
		loc, err = b.CurrentURL(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	return "Navigated back to " + loc, nil
}

func (m *Manager) current(ctx context.Context, _ map[string]any) (string, error) {
	var loc string
	err := m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		var err error
		loc, err = b.CurrentURL(ctx)
		return err
	})
	return loc, err
}

func (m *Manager) extractText(ctx context.Context, _ map[string]any) (string, error) {
	var doc string
	err := m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		var err error
		doc, err = b.OuterHTML(ctx)
		return err
	})
	if err != nil {
		return "", err
	}

	title, text := fetch.ExtractHTML(doc)
	text = fetch.TruncateUTF8(text, maxPageChars)
	if title != "" {
		return "Title: " + title + "\n\n" + text, nil
	}
	return text, nil
}

func (m *Manager) extractHyperlinks(ctx context.Context, args map[string]any) (string, error) {
	var doc, loc string
	err := m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		var err error
		if doc, err = b.OuterHTML(ctx); err != nil {
			return err
		}
		loc, err = b.CurrentURL(ctx)
		return err
	})
	if err != nil {
		return "", err
	}

	base := ""
	if tools.BoolArg(args, "absolute_urls") {
		base = loc
	}
	links := fetch.ExtractLinks(doc, base)
	hrefs := make([]string, 0, len(links))
	for _, l := range links {
		hrefs = append(hrefs, l.URL)
	}
	out, err := json.Marshal(hrefs)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (m *Manager) getElements(ctx context.Context, args map[string]any) (string, error) {
	selector := strings.TrimSpace(tools.StringArg(args, "selector"))
	if selector == "" {
		return "", fmt.Errorf("selector is required")
	}
	attrs := stringSlice(args["attributes"])
	if len(attrs) == 0 {
		attrs = []string{"innerText"}
	}

	var found []map[string]string
	err := m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		var err error
		found, err = b.Elements(ctx, selector, attrs)
		return err
	})
	if err != nil {
		return "", err
	}
	if found == nil {
		found = []map[string]string{}
	}
	out, err := json.Marshal(found)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (m *Manager) clickElement(ctx context.Context, args map[string]any) (string, error) {
	selector := strings.TrimSpace(tools.StringArg(args, "selector"))
	if selector == "" {
		return "", fmt.Errorf("selector is required")
	}
	err := m.WithBrowser(ctx, func(ctx context.Context, b Browser) error {
		return b.Click(ctx, selector)
	})
	if err != nil {
		var re *tools.ResourceError
		if errors.As(err, &re) {
			return "", err
		}
		return "", fmt.Errorf("unable to click on element %q: %w", selector, err)
	}
	return fmt.Sprintf("Clicked element '%s'", selector), nil
}

// stringSlice converts a decoded JSON array (or a single string) to
// []string, skipping non-string items.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t != "" {
			return []string{t}
		}
	}
	return nil
}
