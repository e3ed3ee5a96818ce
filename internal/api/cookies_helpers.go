package api

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the session token for browser
// clients. API clients may use the Authorization header instead.
const SessionCookieName = "cineshelf_session"

// SessionCookiePolicy controls the attributes of issued session cookies.
type SessionCookiePolicy struct {
	// Secure is "auto" (follow the request scheme), "always", or "never".
	Secure   string
	Domain   string
	SameSite http.SameSite
}

func (p SessionCookiePolicy) withDefaults() SessionCookiePolicy {
	if p.Secure == "" {
		p.Secure = "auto"
	}
	if p.SameSite == 0 {
		p.SameSite = http.SameSiteLaxMode
	}
	return p
}

func (p SessionCookiePolicy) secureFor(r *http.Request) bool {
	switch strings.ToLower(p.Secure) {
	case "always":
		return true
	case "never":
		return false
	default:
		return isSecureRequest(r)
	}
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cookies.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cookies.secureFor(r),
		SameSite: h.cookies.SameSite,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.secureFor(r),
		SameSite: h.cookies.SameSite,
	})
}
