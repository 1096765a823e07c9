package httpx

import (
	"strconv"
	"strings"
)

// AcceptsHTML reports whether an Accept header lists text/html with a
// non-zero quality.
func AcceptsHTML(header string) bool {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mediaType, q := parseMediaRange(part)
		if mediaType == "text/html" && q > 0 {
			return true
		}
	}
	return false
}

func parseMediaRange(part string) (string, float64) {
	mediaType := part
	q := 1.0

	if idx := strings.Index(part, ";"); idx != -1 {
		mediaType = strings.TrimSpace(part[:idx])
		params := strings.Split(part[idx+1:], ";")
		for _, p := range params {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(strings.ToLower(p), "q=") {
				val := strings.TrimSpace(p[2:])
				if v, err := strconv.ParseFloat(val, 64); err == nil {
					q = v
				}
			}
		}
	}

	return strings.ToLower(strings.TrimSpace(mediaType)), q
}
