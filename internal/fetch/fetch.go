// Package fetch retrieves the bytes behind a URL for plugins and for the
// remote plugin list.
//
// A request that fails, whether at the transport or with a non-2xx status,
// is retried once through a CORS proxy by prefixing the proxy URL. Only
// GET requests are made.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultProxy is the CORS proxy used when none is configured.
const DefaultProxy = "https://cors-get-proxy.sirjosh.workers.dev/?url="

// MaxBodySize caps a response body.
const MaxBodySize = 32 << 20

// Response is a fetched body with the URL it came from after redirects.
type Response struct {
	URL     string
	Body    []byte
	Proxied bool
}

// Fetcher performs GET requests with a proxy fallback.
type Fetcher struct {
	client  *http.Client
	proxy   string
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProxy sets the fallback proxy prefix. Empty disables the fallback.
func WithProxy(proxy string) Option {
	return func(f *Fetcher) {
		f.proxy = proxy
	}
}

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithRateLimit limits requests to perSecond with the given burst.
// A non-positive rate removes the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(f *Fetcher) {
		if log != nil {
			f.log = log
		}
	}
}

// New creates a Fetcher using DefaultProxy and a 30 second timeout.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		proxy:   DefaultProxy,
		limiter: rate.NewLimiter(5, 5),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Proxy returns the fallback proxy prefix.
func (f *Fetcher) Proxy() string { return f.proxy }

// Get returns the body behind url.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Fetch requests url directly and falls back to the proxy. When both fail
// the direct error is returned alongside the proxy error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrEmptyURL
	}

	resp, err := f.get(ctx, url)
	if err == nil {
		return resp, nil
	}
	if f.proxy == "" || ctx.Err() != nil {
		return nil, err
	}

	f.log.Debugw("Direct request failed, retrying through proxy", "url", url, "error", err)
	resp, proxyErr := f.get(ctx, f.proxy+url)
	if proxyErr != nil {
		return nil, fmt.Errorf("%w (through proxy: %w)", err, proxyErr)
	}
	resp.Proxied = true
	return resp, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return &Response{URL: resp.Request.URL.String(), Body: body}, nil
}
