// Package httpkit builds the HTTP clients used for every outbound call
// Sidekick makes: model providers, search APIs, Wikipedia, push
// notifications and page fetches. Clients share transport limits and
// timeouts and identify themselves with the Sidekick User-Agent.
package httpkit

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/buildinfo"
)

// Transport defaults.
const (
	DefaultDialTimeout         = 10 * time.Second
	DefaultKeepAlive           = 30 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultResponseHeader      = 15 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConns        = 20
	DefaultMaxIdleConnsPerHost = 5

	// DefaultClientTimeout bounds a whole request, body included.
	DefaultClientTimeout = 30 * time.Second
)

// ClientOption configures NewClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	timeout    time.Duration
	userAgent  string
	transport  *http.Transport
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// WithTimeout sets the whole-request timeout. Zero means none, leaving
// the caller's context as the only bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithUserAgent replaces the default Sidekick User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithTransport uses t instead of a fresh NewTransport.
func WithTransport(t *http.Transport) ClientOption {
	return func(o *clientOptions) { o.transport = t }
}

// WithRetry retries requests that failed to connect, up to n more
// times, delay apart. See retryTransport for which failures count.
func WithRetry(n int, delay time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.retries = n
		o.retryDelay = delay
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// NewTransport returns a transport with Sidekick's dial, TLS and pool
// limits.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultKeepAlive}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeader,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}
}

// NewClient returns a client that sets the User-Agent on requests that
// lack one and, with WithRetry, retries connection failures.
func NewClient(opts ...ClientOption) *http.Client {
	o := clientOptions{timeout: DefaultClientTimeout, userAgent: buildinfo.UserAgent()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = NewTransport()
	}

	var rt http.RoundTripper = &userAgentTransport{base: o.transport, ua: o.userAgent}
	if o.retries > 0 {
		rt = &retryTransport{base: rt, count: o.retries, delay: o.retryDelay, logger: o.logger}
	}
	return &http.Client{Timeout: o.timeout, Transport: rt}
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}
