// Package browser owns the single shared browser instance that the
// browsing and PDF tools drive. The instance is launched lazily on first
// use, serialized across concurrent tool calls, and released on session
// reset and process shutdown.
package browser

import "context"

// Browser is one running browser with a single working tab.
type Browser interface {
	// Navigate loads url in the working tab and returns the HTTP status
	// of the main document (0 when unknown).
	Navigate(ctx context.Context, url string) (int, error)
	// Back navigates one step back in the tab history.
	Back(ctx context.Context) error
	// CurrentURL returns the URL of the working tab.
	CurrentURL(ctx context.Context) (string, error)
	// OuterHTML returns the serialized document of the working tab.
	OuterHTML(ctx context.Context) (string, error)
	// Elements returns the requested attributes of every element that
	// matches the CSS selector. The pseudo-attribute "innerText" yields
	// the rendered text.
	Elements(ctx context.Context, selector string, attrs []string) ([]map[string]string, error)
	// Click clicks the first visible element matching the CSS selector.
	Click(ctx context.Context, selector string) error
	// PrintToPDF renders a standalone HTML document to an A4 PDF in a
	// scratch tab, leaving the working tab untouched.
	PrintToPDF(ctx context.Context, html string) ([]byte, error)
	// Close shuts the browser down.
	Close(ctx context.Context) error
}

// LaunchOptions controls how a browser is started.
type LaunchOptions struct {
	Headless bool
	ExecPath string
}

// Launcher starts a browser.
type Launcher func(ctx context.Context, opts LaunchOptions) (Browser, error)
