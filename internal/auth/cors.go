package auth

import (
	"net/http"
	"strconv"
	"strings"

	"ms-reminders/internal/config"
)

// CORSMiddleware lets the dashboard origins call the API. Preflight requests
// from an allowed origin are answered here and never reach the router.
func CORSMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if !originAllowed(cfg.AllowedOrigins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches exact origins, "*" and wildcard subdomains like *.example.com
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasPrefix(a, "*.") && strings.HasSuffix(origin, a[1:]):
			return true
		}
	}
	return false
}
