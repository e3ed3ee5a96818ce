package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/":                              "/",
		"/movies":                        "/movies",
		"/movies/title/The Post":         "/movies/title/:title",
		"/movies/genre/Drama":            "/movies/genre/:genre",
		"/movies/director/Peter Weir":    "/movies/director/:director",
		"/directors/Sofia Coppola":       "/directors/:director",
		"/users/alice01":                 "/users/:login",
		"/users/alice01/favorites":       "/users/:login/favorites",
		"/users/alice01/favorites/mov_1": "/users/:login/favorites/:movie",
		"/users/alice01/movies/mov_1":    "/users/:login/movies/:movie",
		"/healthz":                       "/healthz",
	}
	for input, want := range cases {
		if got := NormalizePath(input); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRecorderWrite(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveRequest(http.MethodGet, "/movies", http.StatusOK, 25*time.Millisecond)
	recorder.ObserveRequest(http.MethodGet, "/movies", http.StatusOK, 25*time.Millisecond)
	recorder.ObserveRequest(http.MethodPost, "/users/alice01/favorites/mov_1", http.StatusOK, 5*time.Millisecond)
	recorder.ObserveAccountEvent("created")
	recorder.ObserveFavoriteEvent("added")
	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveCatalogLookup("genre")
	recorder.SetDatastoreHealth(false)

	var out strings.Builder
	recorder.Write(&out)
	body := out.String()

	for _, want := range []string{
		`cineshelf_http_requests_total{method="GET",path="/movies",status="200"} 2`,
		`cineshelf_http_requests_total{method="POST",path="/users/:login/favorites/:movie",status="200"} 1`,
		`cineshelf_account_events_total{event="created"} 1`,
		`cineshelf_favorite_events_total{event="added"} 1`,
		`cineshelf_auth_events_total{event="login_success"} 1`,
		`cineshelf_catalog_lookups_total{kind="genre"} 1`,
		"cineshelf_datastore_up 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
}

func TestHandler(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveRequest(http.MethodGet, "/movies", http.StatusOK, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "cineshelf_http_requests_total") {
		t.Fatalf("missing counters: %s", rec.Body.String())
	}

	post := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	rec = httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, post)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rec.Code)
	}
}
