package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/wanderwise/edge/internal/cache"
	"github.com/wanderwise/edge/internal/lifecycle"
	"github.com/wanderwise/edge/internal/logging"
	"github.com/wanderwise/edge/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const CacheHeader = "X-Edge-Cache"

// Values of CacheHeader.
const (
	StatusHit      = "HIT"
	StatusMiss     = "MISS"
	StatusNetwork  = "NETWORK"
	StatusFallback = "FALLBACK"
	StatusOffline  = "OFFLINE"
	StatusAbsent   = "ABSENT"
	StatusBypass   = "BYPASS"
)

type Fetcher interface {
	Fetch(ctx context.Context, ref string, headers http.Header) (cache.Response, error)
}

// Controller reports the generation requests are served from once clients
// have been claimed.
type Controller interface {
	Controlling() (string, bool)
}

// Handler intercepts every request: passthrough, network-first for API
// calls, cache-first for everything else.
type Handler struct {
	Cache    cache.Store
	Origin   Fetcher
	Registry Controller
	Proxy    http.Handler
	Logger   logging.Logger

	inflight singleflight.Group
}

func NewHandler(originURL *url.URL, store cache.Store, origin Fetcher, registry Controller, logger logging.Logger) *Handler {
	return &Handler{
		Cache:    store,
		Origin:   origin,
		Registry: registry,
		Proxy:    httputil.NewSingleHostReverseProxy(originURL),
		Logger:   logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info := ClassifyRequest(r)
	if info.Strategy == StrategyPassthrough {
		h.bypass(w, r, info.Reason)
		return
	}

	generation, ok := h.Registry.Controlling()
	if !ok {
		h.bypass(w, r, "not-controlling")
		return
	}

	if info.Strategy == StrategyNetworkFirst {
		h.networkFirst(w, r, generation)
		return
	}
	h.cacheFirst(w, r, generation)
}

func (h *Handler) bypass(w http.ResponseWriter, r *http.Request, reason string) {
	metrics.IncResolution(string(StrategyPassthrough), reason)
	w.Header().Set(CacheHeader, StatusBypass)
	h.Proxy.ServeHTTP(w, r)
}

// networkFirst returns a 200 from the origin untouched and uncached. A
// transport error or any other status falls back to the cached copy, then to
// the offline document.
func (h *Handler) networkFirst(w http.ResponseWriter, r *http.Request, generation string) {
	ctx := r.Context()
	resp, err := h.Origin.Fetch(ctx, r.URL.RequestURI(), apiHeaders(r.Header))
	if err == nil && resp.Status == http.StatusOK {
		h.write(w, StrategyNetworkFirst, resp, StatusNetwork)
		return
	}
	if err != nil {
		h.Logger.Warn("network request failed", "url", r.URL.RequestURI(), "error", err)
	}

	if cached, ok := h.match(ctx, generation, cache.RequestKey(r)); ok {
		h.write(w, StrategyNetworkFirst, cached, StatusFallback)
		return
	}
	h.offline(w, r, StrategyNetworkFirst, generation)
}

// cacheFirst serves a cached copy without touching the network. On a miss the
// origin is asked once per identity, and 200 basic responses are captured
// into the current generation before being returned.
func (h *Handler) cacheFirst(w http.ResponseWriter, r *http.Request, generation string) {
	ctx := r.Context()
	key := cache.RequestKey(r)
	if cached, ok := h.match(ctx, generation, key); ok {
		h.write(w, StrategyCacheFirst, cached, StatusHit)
		return
	}

	v, err, _ := h.inflight.Do(generation+"\x00"+key, func() (any, error) {
		// Shared by every caller waiting on this key, so one client going
		// away must not cancel it.
		resp, err := h.Origin.Fetch(context.WithoutCancel(ctx), r.URL.RequestURI(), captureHeaders(r.Header))
		if err != nil {
			return nil, err
		}
		if isCapturable(resp) {
			h.capture(context.WithoutCancel(ctx), generation, key, resp)
		}
		return resp, nil
	})
	if err != nil {
		h.Logger.Warn("network request failed", "url", r.URL.RequestURI(), "error", err)
		if AcceptsHTML(r.Header.Get("Accept")) {
			h.offline(w, r, StrategyCacheFirst, generation)
			return
		}
		h.absent(w, StrategyCacheFirst)
		return
	}
	h.write(w, StrategyCacheFirst, v.(cache.Response), StatusMiss)
}

func (h *Handler) capture(ctx context.Context, generation, key string, resp cache.Response) {
	if err := h.Cache.Put(ctx, generation, key, resp); err != nil {
		metrics.IncCapture("error")
		h.Logger.Warn("capture failed", "generation", generation, "key", key, "error", err)
		return
	}
	metrics.IncCapture("stored")
}

func (h *Handler) offline(w http.ResponseWriter, r *http.Request, strategy Strategy, generation string) {
	if page, ok := h.match(r.Context(), generation, cache.URLKey(lifecycle.OfflineURL)); ok {
		h.write(w, strategy, page, StatusOffline)
		return
	}
	h.absent(w, strategy)
}

// absent stands in for a fetch that resolved to no response at all.
func (h *Handler) absent(w http.ResponseWriter, strategy Strategy) {
	metrics.IncResolution(string(strategy), StatusAbsent)
	w.Header().Set(CacheHeader, StatusAbsent)
	w.WriteHeader(http.StatusGatewayTimeout)
}

func (h *Handler) match(ctx context.Context, generation, key string) (cache.Response, bool) {
	resp, err := h.Cache.Match(ctx, generation, key)
	if err == nil {
		return resp, true
	}
	if !errors.Is(err, cache.ErrNotFound) {
		h.Logger.Warn("cache lookup failed", "generation", generation, "key", key, "error", err)
	}
	return cache.Response{}, false
}

func (h *Handler) write(w http.ResponseWriter, strategy Strategy, resp cache.Response, cacheStatus string) {
	metrics.IncResolution(string(strategy), cacheStatus)
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(CacheHeader, cacheStatus)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func isCapturable(resp cache.Response) bool {
	return resp.Status == http.StatusOK && resp.Type == cache.TypeBasic
}
