package origin

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wanderwise/edge/internal/cache"
	"golang.org/x/net/http2"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client fetches from the itinerary application the edge fronts.
type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	return NewClientWithHTTP(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	})
}

func NewClientWithHTTP(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin url %q must be absolute", baseURL)
	}
	return &Client{base: u, http: hc}, nil
}

func NewTransport() *http.Transport {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}
	_ = http2.ConfigureTransport(tr)
	return tr
}

// BaseURL is the origin the edge proxies to.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Resolve turns an origin-relative reference into an absolute origin URL.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + r.Path
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawPath = ""
	u.RawQuery = r.RawQuery
	return &u, nil
}

// Fetch performs a GET for ref and snapshots the full response. Transport
// failures are returned as errors; any HTTP status is a response.
func (c *Client) Fetch(ctx context.Context, ref string, headers http.Header) (cache.Response, error) {
	u, err := c.Resolve(ref)
	if err != nil {
		return cache.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cache.Response{}, err
	}
	copyHeaders(req.Header, headers)
	removeHopHeaders(req.Header)
	req.Header.Del("Host")
	// Left to the transport so snapshot bodies are always decoded.
	req.Header.Del("Accept-Encoding")

	resp, err := c.http.Do(req)
	if err != nil {
		return cache.Response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.Response{}, err
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	return cache.Response{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		Type:     c.responseType(resp),
		StoredAt: time.Now().UTC(),
	}, nil
}

// responseType reports opaque when redirects carried the request off the
// origin.
func (c *Client) responseType(resp *http.Response) cache.Type {
	if resp.Request == nil || resp.Request.URL == nil {
		return cache.TypeBasic
	}
	final := resp.Request.URL
	if !strings.EqualFold(final.Scheme, c.base.Scheme) || !strings.EqualFold(final.Host, c.base.Host) {
		return cache.TypeOpaque
	}
	return cache.TypeBasic
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if len(vv) == 0 {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
