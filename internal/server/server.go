// Package server assembles the HTTP mux, the middleware chain, and the
// listener lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cineshelf/internal/api"
	"cineshelf/internal/observability/logging"
	"cineshelf/internal/observability/metrics"
)

const defaultReadHeaderTimeout = 10 * time.Second

// Config controls listener behaviour and the middleware chain.
type Config struct {
	Addr              string
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
	Logger            *slog.Logger
	AuditLogger       *slog.Logger
	Metrics           *metrics.Recorder
	RateLimit         RateLimitConfig
	Security          SecurityConfig
	CORS              CORSConfig
}

// Server owns the configured http.Server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	limiter    *rateLimiter
	certFile   string
	keyFile    string
}

// New builds the route table and wraps it in the middleware chain.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := cfg.AuditLogger
	if auditLogger == nil {
		auditLogger = logging.WithComponent(logger, "audit")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	limiter, err := newRateLimiter(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("configure rate limiter: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/auth/login", handler.Login)
	mux.HandleFunc("/auth/session", handler.Session)
	mux.HandleFunc("/movies", handler.Movies)
	mux.HandleFunc("/movies/", handler.MovieSubresource)
	mux.HandleFunc("/directors/", handler.DirectorByName)
	mux.HandleFunc("/users", handler.Accounts)
	mux.HandleFunc("/users/", handler.AccountByLogin)
	mux.HandleFunc("/", handler.Welcome)

	var chain http.Handler = mux
	chain = authMiddleware(handler, chain)
	chain = limiter.middleware(chain)
	chain = metricsMiddleware(recorder, chain)
	chain = auditMiddleware(auditLogger, chain)
	chain = securityHeadersMiddleware(cfg.Security.withDefaults(), chain)
	chain = corsMiddleware(cfg.CORS, chain)
	chain = requestIDMiddleware(chain)
	chain = loggingMiddleware(logger, chain)

	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = defaultReadHeaderTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           chain,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger:   logger,
		limiter:  limiter,
		certFile: cfg.TLSCertFile,
		keyFile:  cfg.TLSKeyFile,
	}, nil
}

// Handler exposes the assembled chain, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until the listener closes.
func (s *Server) Start() error {
	if s.certFile != "" && s.keyFile != "" {
		s.logger.Info("listening with TLS", "addr", s.httpServer.Addr)
		return s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
	}
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and releases limiter resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.limiter.close()
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		requestLogger := logger
		if requestID, ok := logging.RequestIDFromContext(r.Context()); ok {
			requestLogger = requestLogger.With("requestId", requestID)
		}
		requestLogger.Info("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"durationMs", time.Since(start).Milliseconds(),
			"remote", clientIP(r))
	})
}

// auditMiddleware records every mutation against accounts and sessions.
func auditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if !isAuditedRequest(r) {
			return
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"remote", clientIP(r),
		}
		if account, ok := api.AccountFromContext(r.Context()); ok {
			attrs = append(attrs, "principal", account.LoginName)
		}
		logger.Info("mutation", attrs...)
	})
}

func isAuditedRequest(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/users") || strings.HasPrefix(r.URL.Path, "/auth/")
}

func metricsMiddleware(recorder *metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(status, r)
		recorder.ObserveRequest(r.Method, r.URL.Path, status.status, time.Since(start))
	})
}

// authMiddleware resolves the session into a request-scoped principal for
// protected paths. Catalog reads, health, metrics, the auth endpoints, and
// registration stay public.
func authMiddleware(handler *api.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresSession(r) {
			// Still attach the principal when a valid token is present so
			// downstream handlers can use it.
			if account, ok := handler.AuthenticateRequest(r); ok {
				r = r.WithContext(api.ContextWithAccount(r.Context(), account))
			}
			next.ServeHTTP(w, r)
			return
		}
		account, ok := handler.AuthenticateRequest(r)
		if !ok {
			api.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(api.ContextWithAccount(r.Context(), account)))
	})
}

func requiresSession(r *http.Request) bool {
	path := r.URL.Path
	switch {
	case path == "/users":
		// Registration is public; the account listing authorizes itself.
		return r.Method == http.MethodGet
	case strings.HasPrefix(path, "/users/"):
		return true
	default:
		return false
	}
}
