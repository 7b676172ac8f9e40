package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"
)

const defaultClientIdentity = "127.0.0.1"

// bypassesAdmission reports paths served without counting against the
// client's window: static assets, image optimization and the favicon.
func bypassesAdmission(path string) bool {
	switch {
	case strings.HasPrefix(path, "/_next/static/"),
		strings.HasPrefix(path, "/static/"),
		strings.HasPrefix(path, "/_next/image"),
		path == "/favicon.ico":
		return true
	}
	return false
}

// isProbe matches the liveness and readiness endpoints, which orchestrators
// poll from a single address.
func isProbe(path string) bool {
	return path == "/health" || path == "/ready"
}

// clientIdentity is the first X-Forwarded-For entry, or the loopback
// address when the header is absent.
func clientIdentity(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return defaultClientIdentity
	}
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if first == "" {
		return defaultClientIdentity
	}
	return first
}

// admission counts every gated request against the client's sliding window.
// When the limiter itself fails the request passes through without headers.
func (s *Server) admission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || r.Method == http.MethodOptions || bypassesAdmission(r.URL.Path) || isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		result, err := s.limiter.Limit(r.Context(), clientIdentity(r))
		if err != nil {
			log.Printf("rate limiter unavailable, admitting request: %v", err)
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.UnixMilli(), 10))
		if !result.Success {
			headers.Set("X-Cache-Status", "MISS")
			writeJSONStatus(w, map[string]string{"error": "Rate limit exceeded"}, http.StatusTooManyRequests)
			return
		}
		headers.Set("X-Cache-Status", "HIT")
		next.ServeHTTP(w, r)
	})
}
