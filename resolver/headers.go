package resolver

import (
	"net/http"
	"strings"

	"github.com/ArildWaldan/suivi-sap/tracker"
)

// Connection and fetch-metadata headers are never replayed. The cookie is
// replayed through AddCookie instead.
var deniedHeaders = map[string]bool{
	"Host":              true,
	"Connection":        true,
	"Content-Length":    true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Accept-Encoding":   true,
	"Cookie":            true,
	"Te":                true,
	"Priority":          true,
}

func denied(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	return deniedHeaders[canonical] || strings.HasPrefix(canonical, "Sec-")
}

// applyAuth writes defaults, then the captured headers over them, then the
// captured cookie.
func applyAuth(req *http.Request, defaults map[string]string, ac tracker.AuthContext) {
	for name, value := range defaults {
		req.Header.Set(name, value)
	}
	for name, value := range ac.Headers {
		if value == "" || denied(name) {
			continue
		}
		req.Header.Set(name, value)
	}
	for _, c := range parseCookies(ac.Cookie) {
		req.AddCookie(c)
	}
}

func parseCookies(raw string) []*http.Cookie {
	var out []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	return out
}
