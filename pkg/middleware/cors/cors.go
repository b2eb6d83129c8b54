package cors

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker returns a websocket upgrade origin policy. An empty allow list accepts
// requests without an Origin header and same-host origins only.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
		}
		if origin != "" {
			originSet[strings.ToLower(origin)] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if hasOrigin(originSet, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

func hasOrigin(originSet map[string]struct{}, origin string) bool {
	origin = strings.ToLower(strings.TrimRight(origin, "/"))
	_, ok := originSet[origin]
	return ok
}
