package httpx

import (
	"net/http"
	"strings"
)

type Strategy string

const (
	StrategyPassthrough  Strategy = "passthrough"
	StrategyNetworkFirst Strategy = "network-first"
	StrategyCacheFirst   Strategy = "cache-first"
)

// APIPrefix marks requests that always go network-first.
const APIPrefix = "/api/"

var excludedSchemes = []string{
	"chrome-extension://",
	"moz-extension://",
	"safari-web-extension://",
}

// devServerMarkers identify live-reload and hot module replacement traffic.
var devServerMarkers = []string{
	"sockjs",
	"hot-update",
}

type RequestInfo struct {
	Strategy Strategy
	Reason   string
}

// ClassifyRequest picks how a request is resolved from its method and URL
// alone.
func ClassifyRequest(r *http.Request) RequestInfo {
	if r.Method != http.MethodGet {
		return RequestInfo{Strategy: StrategyPassthrough, Reason: "method-not-get"}
	}

	raw := requestURL(r)
	for _, scheme := range excludedSchemes {
		if strings.HasPrefix(raw, scheme) {
			return RequestInfo{Strategy: StrategyPassthrough, Reason: "extension-scheme"}
		}
	}
	for _, marker := range devServerMarkers {
		if strings.Contains(raw, marker) {
			return RequestInfo{Strategy: StrategyPassthrough, Reason: "dev-server"}
		}
	}

	if strings.Contains(raw, APIPrefix) {
		return RequestInfo{Strategy: StrategyNetworkFirst, Reason: "api"}
	}
	return RequestInfo{Strategy: StrategyCacheFirst, Reason: "static"}
}

// requestURL rebuilds the URL the client asked for. Proxy-form requests
// already carry an absolute URL.
func requestURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
