package httpx

import "net/http"

// captureForward is every client header a shared capture may depend on.
var captureForward = []string{
	"Accept",
	"Accept-Language",
}

// apiStrip lists headers under which the origin may answer 304 or 206.
var apiStrip = []string{
	"Accept-Encoding",
	"If-Match",
	"If-Modified-Since",
	"If-None-Match",
	"If-Range",
	"If-Unmodified-Since",
	"Range",
}

// captureHeaders returns the subset of h forwarded on a cache-first miss.
func captureHeaders(h http.Header) http.Header {
	out := make(http.Header, len(captureForward))
	for _, name := range captureForward {
		if vv := h.Values(name); len(vv) > 0 {
			out[name] = append([]string(nil), vv...)
		}
	}
	return out
}

// apiHeaders returns h without conditional, range and encoding headers.
// API responses are never shared, so credentials still go through.
func apiHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, name := range apiStrip {
		out.Del(name)
	}
	return out
}
