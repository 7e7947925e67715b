package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// A4 in inches.
const (
	a4Width  = 8.27
	a4Height = 11.69
)

type chromeBrowser struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// LaunchChrome starts a Chrome/Chromium process through the DevTools
// protocol. The process outlives ctx; only the startup is bounded by it.
func LaunchChrome(ctx context.Context, opts LaunchOptions) (Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(1280, 900),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tab) }()

	select {
	case err := <-started:
		if err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}

	return &chromeBrowser{tab: tab, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

// run executes actions on the working tab, aborting when ctx ends.
func (c *chromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (c *chromeBrowser) Navigate(ctx context.Context, url string) (int, error) {
	runCtx, cancel := context.WithCancel(c.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return int(resp.Status), nil
}

func (c *chromeBrowser) Back(ctx context.Context) error {
	return c.run(ctx, chromedp.NavigateBack())
}

func (c *chromeBrowser) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	err := c.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (c *chromeBrowser) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (c *chromeBrowser) Elements(ctx context.Context, selector string, attrs []string) ([]map[string]string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	names, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => {
  const out = {};
  for (const a of %s) {
    const v = a === "innerText" ? el.innerText : el.getAttribute(a);
    if (v !== null && v !== undefined) out[a] = String(v).trim();
  }
  return out;
})`, sel, names)

	var out []map[string]string
	if err := c.run(ctx, chromedp.Evaluate(js, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chromeBrowser) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (c *chromeBrowser) PrintToPDF(ctx context.Context, html string) ([]byte, error) {
	scratch, closeScratch := chromedp.NewContext(c.tab)
	defer closeScratch()
	stop := context.AfterFunc(ctx, closeScratch)
	defer stop()

	dataURL := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var pdf []byte
	err := chromedp.Run(scratch,
		chromedp.Navigate(dataURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return pdf, nil
}

func (c *chromeBrowser) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(c.tab) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.cancelTab()
	c.cancelAlloc()
	return err
}
