package server

import (
	"net/http"
	"strconv"
)

// SecurityConfig controls the security headers applied to every response.
type SecurityConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
	// HSTSMaxAgeSeconds enables Strict-Transport-Security when positive.
	HSTSMaxAgeSeconds int
}

func (c SecurityConfig) withDefaults() SecurityConfig {
	if c.ContentSecurityPolicy == "" {
		c.ContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"
	}
	if c.FrameOptions == "" {
		c.FrameOptions = "DENY"
	}
	if c.ReferrerPolicy == "" {
		c.ReferrerPolicy = "no-referrer"
	}
	return c
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", cfg.FrameOptions)
		headers.Set("Referrer-Policy", cfg.ReferrerPolicy)
		if cfg.HSTSMaxAgeSeconds > 0 && r.TLS != nil {
			headers.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(cfg.HSTSMaxAgeSeconds))
		}
		next.ServeHTTP(w, r)
	})
}
