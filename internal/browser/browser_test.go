package browser

import (
	"context"
	"errors"
	"sync"
)

// fakeBrowser records calls and serves canned page state.
type fakeBrowser struct {
	mu       sync.Mutex
	url      string
	history  []string
	html     string
	status   int
	elements []map[string]string
	clickErr error
	pdf      []byte
	gotHTML  string
	closed   int
	closeErr error
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.url != "" {
		f.history = append(f.history, f.url)
	}
	f.url = url
	return f.status, nil
}

func (f *fakeBrowser) Back(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return errors.New("no history")
	}
	f.url = f.history[len(f.history)-1]
	f.history = f.history[:len(f.history)-1]
	return nil
}

func (f *fakeBrowser) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeBrowser) OuterHTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, nil
}

func (f *fakeBrowser) Elements(_ context.Context, _ string, attrs []string) ([]map[string]string, error) {
	var out []map[string]string
	for _, e := range f.elements {
		row := map[string]string{}
		for _, a := range attrs {
			if v, ok := e[a]; ok {
				row[a] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeBrowser) Click(context.Context, string) error { return f.clickErr }

func (f *fakeBrowser) PrintToPDF(_ context.Context, html string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotHTML = html
	return f.pdf, nil
}

func (f *fakeBrowser) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

// countingLauncher returns b on every launch and counts launches.
type countingLauncher struct {
	mu       sync.Mutex
	launches int
	opts     []LaunchOptions
	b        *fakeBrowser
	err      error
}

func (l *countingLauncher) launch(_ context.Context, opts LaunchOptions) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.opts = append(l.opts, opts)
	if l.err != nil {
		return nil, l.err
	}
	return l.b, nil
}

func (l *countingLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func boolPtr(b bool) *bool { return &b }
