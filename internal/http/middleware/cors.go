package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORSConfig describes which browser front ends may call the agenda.
type CORSConfig struct {
	// Origins are exact origins, "*" for any origin, or a wildcard
	// subdomain such as "https://*.clinic.example".
	Origins []string
	// Methods are the methods the mounted routes serve. OPTIONS is implied.
	Methods []string
}

type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: map[string]struct{}{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			m.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			m.suffixes = append(m.suffixes, scheme+"://|"+host)
		default:
			m.exact[origin] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if m.any {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, pattern := range m.suffixes {
		scheme, host, _ := strings.Cut(pattern, "|")
		rest, ok := strings.CutPrefix(origin, scheme)
		if ok && strings.HasSuffix(rest, host) && len(rest) > len(host) {
			return true
		}
	}
	return false
}

// CORS answers preflights and tags responses for allowlisted origins.
// Preflights for a method the routes do not serve get 405.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := newOriginMatcher(cfg.Origins)

	methods := []string{http.MethodOptions}
	for _, method := range cfg.Methods {
		method = strings.ToUpper(strings.TrimSpace(method))
		if method != "" && !slices.Contains(methods, method) {
			methods = append(methods, method)
		}
	}
	slices.Sort(methods)
	allowedMethods := strings.Join(methods, ", ")
	allowedHeaders := "Authorization, Content-Type, X-Request-ID"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := origins.allows(origin)
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "600")
			}

			requested := r.Header.Get("Access-Control-Request-Method")
			if r.Method == http.MethodOptions && origin != "" && requested != "" {
				if allowed && !slices.Contains(methods, strings.ToUpper(requested)) {
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
