package cache

import (
	"net/http"
	"net/url"
)

// RequestKey is the identity a response is stored under: the method and the
// origin-relative URL. Every generation belongs to a single origin, so the
// host is left out.
func RequestKey(r *http.Request) string {
	return r.Method + " " + r.URL.RequestURI()
}

// URLKey is the identity of a GET for ref, which may be absolute or
// origin-relative.
func URLKey(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return http.MethodGet + " " + ref
	}
	return http.MethodGet + " " + u.RequestURI()
}
