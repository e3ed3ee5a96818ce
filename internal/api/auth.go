package api

import (
	"context"
	"net/http"
	"strings"

	"cineshelf/internal/models"
)

type contextKey string

const accountContextKey contextKey = "account"

// ContextWithAccount stores the authenticated principal in ctx.
func ContextWithAccount(ctx context.Context, account models.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// AccountFromContext returns the authenticated principal, if any.
func AccountFromContext(ctx context.Context) (models.Account, bool) {
	account, ok := ctx.Value(accountContextKey).(models.Account)
	return account, ok
}

// ExtractToken pulls the session token from the Authorization header or the
// session cookie.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest resolves the request's session token to an account.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.Account, bool) {
	token := ExtractToken(r)
	if token == "" {
		return models.Account{}, false
	}
	accountID, ok := h.sessions.Validate(token)
	if !ok {
		return models.Account{}, false
	}
	account, ok := h.store.GetAccount(accountID)
	if !ok {
		h.sessions.Revoke(token)
		return models.Account{}, false
	}
	return account, true
}

// requirePrincipal returns the principal from the request context, falling
// back to direct token resolution, and writes a 401 when neither succeeds.
func (h *Handler) requirePrincipal(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	if account, ok := AccountFromContext(r.Context()); ok {
		return account, true
	}
	if account, ok := h.AuthenticateRequest(r); ok {
		return account, true
	}
	writeError(w, http.StatusUnauthorized, "authentication required")
	return models.Account{}, false
}
