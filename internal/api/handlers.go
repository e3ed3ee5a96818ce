// Package api implements the HTTP surface of the catalog: movie browsing,
// account management, favorites, and session endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"cineshelf/internal/accounts"
	"cineshelf/internal/auth"
	"cineshelf/internal/observability/metrics"
	"cineshelf/internal/storage"
)

const healthCheckTimeout = 2 * time.Second

// HandlerConfig wires the dependencies of the HTTP handlers.
type HandlerConfig struct {
	Store           storage.Repository
	Accounts        *accounts.Service
	Sessions        *auth.SessionManager
	Cookies         SessionCookiePolicy
	AllowSelfSignup bool
	Logger          *slog.Logger
	Metrics         *metrics.Recorder
}

// Handler carries the dependencies shared by every endpoint.
type Handler struct {
	store           storage.Repository
	accounts        *accounts.Service
	sessions        *auth.SessionManager
	cookies         SessionCookiePolicy
	allowSelfSignup bool
	logger          *slog.Logger
	metrics         *metrics.Recorder
}

// NewHandler constructs the handler set.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	return &Handler{
		store:           cfg.Store,
		accounts:        cfg.Accounts,
		sessions:        cfg.Sessions,
		cookies:         cfg.Cookies.withDefaults(),
		allowSelfSignup: cfg.AllowSelfSignup,
		logger:          logger,
		metrics:         recorder,
	}
}

// Welcome serves the root greeting. Any other unrouted path lands here and
// reports 404.
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeText(w, http.StatusOK, "Welcome to CineShelf!")
}

type componentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Health probes the datastore and the session store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make([]componentStatus, 0, 2)

	datastore := componentStatus{Name: "datastore", Healthy: true}
	if err := h.store.Ping(ctx); err != nil {
		datastore.Healthy = false
		datastore.Detail = "unreachable"
		h.logger.Error("datastore health check failed", "error", err)
	}
	h.metrics.SetDatastoreHealth(datastore.Healthy)
	components = append(components, datastore)

	sessions := componentStatus{Name: "sessions", Healthy: true}
	if err := h.sessions.Ping(ctx); err != nil {
		sessions.Healthy = false
		sessions.Detail = "unreachable"
		h.logger.Error("session store health check failed", "error", err)
	}
	components = append(components, sessions)

	status := http.StatusOK
	overall := "ok"
	for _, component := range components {
		if !component.Healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
	})
}
