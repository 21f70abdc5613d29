package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const maxPageSize = 2 << 20

// ErrConnectionIssue wraps every network-level fetch failure: dial errors,
// timeouts and truncated reads.
var ErrConnectionIssue = errors.New("connection issue")

// EgressMode selects the network path for outbound fetches.
type EgressMode int

const (
	Direct EgressMode = iota
	Fallback
)

func (m EgressMode) String() string {
	if m == Fallback {
		return "fallback"
	}
	return "direct"
}

// Toggle returns the other mode.
func (m EgressMode) Toggle() EgressMode {
	if m == Fallback {
		return Direct
	}
	return Fallback
}

// Page is a fetched response. Status is the HTTP status code. Truncated
// is set when the body was longer than maxPageSize; Body then holds only
// the first maxPageSize bytes.
type Page struct {
	Status    int
	Body      []byte
	Latency   time.Duration
	Truncated bool
}

type TransportConfig struct {
	Timeout time.Duration
	// FallbackProxy is a socks5:// (or http://) proxy URL. Empty means the
	// fallback route is the direct route.
	FallbackProxy string
	UserAgent     string
}

// Transport issues GET requests with a hard timeout. It keeps one client per
// egress mode and no other state.
type Transport struct {
	timeout   time.Duration
	userAgent string
	direct    *http.Client
	fallback  *http.Client
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	t := &Transport{
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		direct:    &http.Client{Transport: baseTransport()},
	}
	t.fallback = t.direct
	if raw := strings.TrimSpace(cfg.FallbackProxy); raw != "" {
		rt, err := proxiedTransport(raw)
		if err != nil {
			return nil, err
		}
		t.fallback = &http.Client{Transport: rt}
	}
	return t, nil
}

func baseTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func proxiedTransport(raw string) (*http.Transport, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("fallback proxy: %w", err)
	}
	rt := baseTransport()
	switch u.Scheme {
	case "http", "https":
		rt.Proxy = http.ProxyURL(u)
		return rt, nil
	case "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("fallback proxy: unsupported scheme %q", u.Scheme)
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("fallback proxy: %w", err)
	}
	rt.Proxy = nil
	if cd, ok := d.(proxy.ContextDialer); ok {
		rt.DialContext = cd.DialContext
	} else {
		rt.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return d.Dial(network, addr)
		}
	}
	return rt, nil
}

// Fetch GETs rawURL over the given egress route. Any network failure comes
// back wrapped in ErrConnectionIssue; HTTP error statuses are not errors.
func (t *Transport) Fetch(ctx context.Context, rawURL string, mode EgressMode) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	client := t.direct
	if mode == Fallback {
		client = t.fallback
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionIssue, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrConnectionIssue, err)
	}
	p := &Page{Status: resp.StatusCode, Body: body, Latency: time.Since(start)}
	if len(body) > maxPageSize {
		p.Body, p.Truncated = body[:maxPageSize], true
	}
	return p, nil
}

// Close drops idle connections on both routes.
func (t *Transport) Close() {
	for _, c := range []*http.Client{t.direct, t.fallback} {
		if rt, ok := c.Transport.(*http.Transport); ok {
			rt.CloseIdleConnections()
		}
	}
}
