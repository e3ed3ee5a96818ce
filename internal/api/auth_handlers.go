package api

import (
	"net/http"
	"time"
)

type loginRequest struct {
	LoginName string `json:"loginName"`
	Password  string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   accountResponse `json:"account"`
}

// Login exchanges credentials for a session token. The token is returned in
// the body and mirrored into the session cookie for browser clients.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := h.store.AuthenticateAccount(req.LoginName, req.Password)
	if err != nil {
		h.metrics.ObserveAuthEvent("login_failure")
		h.writeServiceError(w, r, err)
		return
	}
	session, err := h.sessions.Create(account.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.metrics.ObserveAuthEvent("login_success")
	h.setSessionCookie(w, r, session.Token, session.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Account:   newAccountResponse(account),
	})
}

// Session probes (GET) or revokes (DELETE) the current session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		account, ok := h.requirePrincipal(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, newAccountResponse(account))
	case http.MethodDelete:
		if token := ExtractToken(r); token != "" {
			h.sessions.Revoke(token)
			h.metrics.ObserveAuthEvent("logout")
		}
		h.clearSessionCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
