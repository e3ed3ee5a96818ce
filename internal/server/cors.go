package server

import "net/http"

// CORSConfig lists the origins allowed to call the API from a browser. Empty
// disables CORS handling entirely.
type CORSConfig struct {
	AllowedOrigins []string
}

func corsMiddleware(cfg CORSConfig, next http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		return next
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	allowAll := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			_, ok := allowed[origin]
			if allowAll || ok {
				headers := w.Header()
				headers.Set("Access-Control-Allow-Origin", origin)
				headers.Set("Access-Control-Allow-Credentials", "true")
				headers.Set("Vary", "Origin")
				if r.Method == http.MethodOptions {
					headers.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					headers.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
