package httpkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned by GetJSON and PostJSON for a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// GetJSON issues a GET with the extra header and decodes the JSON reply
// into out.
func GetJSON(ctx context.Context, c *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return doJSON(c, req, header, out)
}

// PostJSON sends body as JSON and decodes the reply into out. A nil out
// discards the reply.
func PostJSON(ctx context.Context, c *http.Client, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(c, req, header, out)
}

func doJSON(c *http.Client, req *http.Request, header http.Header, out any) error {
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, err)
	}
	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode, Body: ReadErrorBody(resp.Body, 512)}
	}
	defer DrainAndClose(resp.Body, 4096)
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ReadErrorBody returns up to limit bytes of rc for an error message and
// releases the connection. A nil rc gives "".
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	defer DrainAndClose(rc, 1024)
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}

// DrainAndClose discards up to limit bytes of rc and closes it so the
// connection can return to the pool.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, limit))
	_ = rc.Close()
}
