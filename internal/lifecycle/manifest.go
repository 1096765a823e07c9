package lifecycle

// CacheName is the current cache generation. Bumping it on deploy makes the
// next activation drop every older generation.
const CacheName = "wanderwise-cache-v1"

// OfflineURL is served when neither the network nor the cache can answer.
const OfflineURL = "/offline.html"

var assets = []string{
	"/",
	"/static/css/main.css",
	"/static/css/map.css",
	"/static/js/htmx.min.js",
	"/static/js/map.js",
	"/static/js/drag-and-drop.js",
	"/static/images/logo.png",
	"/static/icons/icon-192x192.png",
	"/static/icons/icon-512x512.png",
	OfflineURL,
}

// Assets returns the install-time manifest in order.
func Assets() []string {
	return append([]string(nil), assets...)
}
