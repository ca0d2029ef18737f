package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORSMiddleware.
type CORSConfig struct {
	AllowedOrigins         []string
	AllowedMethods         []string
	AllowedHeaders         []string
	ExposedHeaders         []string
	AllowCredentials       bool
	MaxAgeSeconds          int
	PreflightStatus        int
	RejectDisallowedOrigin bool
}

// DefaultCORSConfig returns sensible defaults for the PLATER/AUTOMAT public
// HTTP surface: read-only graph queries and spec aggregation, no cookies.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins:  []string{"*"},
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:  []string{"Content-Type", "Authorization", "X-Trace-ID"},
		MaxAgeSeconds:   3600,
		PreflightStatus: http.StatusNoContent,
	}
}

// CORSMiddleware adds CORS response headers and answers preflight requests.
type CORSMiddleware struct {
	cfg      CORSConfig
	allowAll bool
}

// NewCORSMiddleware constructs a CORSMiddleware from cfg, filling in defaults
// for zero-valued fields.
func NewCORSMiddleware(cfg CORSConfig) *CORSMiddleware {
	defaults := DefaultCORSConfig()
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaults.AllowedOrigins
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = defaults.AllowedMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = defaults.AllowedHeaders
	}
	if cfg.MaxAgeSeconds == 0 {
		cfg.MaxAgeSeconds = defaults.MaxAgeSeconds
	}
	if cfg.PreflightStatus == 0 {
		cfg.PreflightStatus = defaults.PreflightStatus
	}

	allowAll := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}

	return &CORSMiddleware{cfg: cfg, allowAll: allowAll}
}

// Handler wraps next with CORS header injection and preflight handling.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if m.allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if m.isOriginAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			} else if m.cfg.RejectDisallowedOrigin && r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusForbidden)
				return
			}

			if m.cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(m.cfg.AllowedMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(m.cfg.AllowedHeaders, ", "))
			if len(m.cfg.ExposedHeaders) > 0 {
				w.Header().Set("Access-Control-Expose-Headers", strings.Join(m.cfg.ExposedHeaders, ", "))
			}
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(m.cfg.MaxAgeSeconds))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(m.cfg.PreflightStatus)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) isOriginAllowed(origin string) bool {
	for _, allowed := range m.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
		if strings.HasPrefix(allowed, ".") && strings.HasSuffix(origin, allowed) {
			return true
		}
	}
	return false
}
