package services

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// CSRF returns middleware that validates Origin/Referer headers on
// state-changing requests. Session cookies ride along with every request to
// the site, so a cross-site form post would otherwise act as the user.
func CSRF(allowedOrigins []string) func(http.Handler) http.Handler {
	allowedSet := make(map[string]bool)
	for _, origin := range allowedOrigins {
		normalized := normalizeOrigin(origin)
		if normalized != "" {
			allowedSet[normalized] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if origin := r.Header.Get("Origin"); origin != "" {
				if !allowedSet[normalizeOrigin(origin)] {
					slog.Warn("CSRF validation failed: invalid origin", "origin", origin, "path", r.URL.Path)
					http.Error(w, "CSRF validation failed: invalid origin", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if referer := r.Header.Get("Referer"); referer != "" {
				if !allowedSet[normalizeOrigin(extractOrigin(referer))] {
					slog.Warn("CSRF validation failed: invalid referer", "referer", referer, "path", r.URL.Path)
					http.Error(w, "CSRF validation failed: invalid referer", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			http.Error(w, "CSRF validation failed: missing origin", http.StatusForbidden)
		})
	}
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// extractOrigin extracts the origin (scheme://host:port) from a URL.
func extractOrigin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// splitOrigins parses a comma-separated origin list.
func splitOrigins(list string) []string {
	var origins []string
	for _, origin := range strings.Split(list, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
