package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"cineshelf/internal/accounts"
	"cineshelf/internal/api"
	"cineshelf/internal/auth"
	"cineshelf/internal/models"
	"cineshelf/internal/observability/metrics"
	"cineshelf/internal/storage"
)

type testServer struct {
	chain http.Handler
	store *storage.Storage
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	sessions := auth.NewSessionManager()
	service := accounts.NewService(store, store, accounts.WithLogger(slog.Default()))
	handler := api.NewHandler(api.HandlerConfig{
		Store:           store,
		Accounts:        service,
		Sessions:        sessions,
		AllowSelfSignup: true,
		Metrics:         cfg.Metrics,
	})
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { srv.limiter.close() })
	return &testServer{chain: srv.Handler(), store: store}
}

func (s *testServer) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.chain.ServeHTTP(rec, req)
	return rec
}

// TestFavoritesScenario drives the full account and favorites lifecycle
// through the assembled middleware chain.
func TestFavoritesScenario(t *testing.T) {
	recorder := metrics.NewRecorder()
	srv := newTestServer(t, Config{Metrics: recorder})
	movie, err := srv.store.CreateMovie(storage.CreateMovieParams{
		Title:    "The Lives of Others",
		Genre:    models.Genre{Name: "Drama"},
		Director: models.Director{Name: "Florian Henckel von Donnersmarck"},
	})
	if err != nil {
		t.Fatalf("CreateMovie: %v", err)
	}
	spare, err := srv.store.CreateMovie(storage.CreateMovieParams{
		Title:    "The Post",
		Genre:    models.Genre{Name: "Drama"},
		Director: models.Director{Name: "Steven Spielberg"},
	})
	if err != nil {
		t.Fatalf("CreateMovie: %v", err)
	}

	// Registration is public.
	body := `{"loginName":"alice01","email":"alice@example.com","password":"secret1"}`
	if rec := srv.do(t, http.MethodPost, "/users", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("create account: %d %s", rec.Code, rec.Body.String())
	}
	// A duplicate login name is rejected and the original is untouched.
	if rec := srv.do(t, http.MethodPost, "/users", body, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate create: %d", rec.Code)
	}

	// Mutations require a session.
	if rec := srv.do(t, http.MethodPost, "/users/alice01/favorites/"+movie.ID, "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	login := srv.do(t, http.MethodPost, "/auth/login", `{"loginName":"alice01","password":"secret1"}`, "")
	if login.Code != http.StatusOK {
		t.Fatalf("login: %d %s", login.Code, login.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(login.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	// Adding a favorite is idempotent.
	addPath := "/users/alice01/favorites/" + movie.ID
	for i := 0; i < 2; i++ {
		rec := srv.do(t, http.MethodPost, addPath, "", session.Token)
		if rec.Code != http.StatusOK {
			t.Fatalf("add favorite round %d: %d %s", i, rec.Code, rec.Body.String())
		}
		var account struct {
			Favorites []string `json:"favorites"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
			t.Fatalf("decode account: %v", err)
		}
		if len(account.Favorites) != 1 {
			t.Fatalf("favorites after round %d: %v", i, account.Favorites)
		}
	}

	// Removing a favorite that was never added still succeeds.
	if rec := srv.do(t, http.MethodDelete, "/users/alice01/movies/"+spare.ID, "", session.Token); rec.Code != http.StatusOK {
		t.Fatalf("remove absent favorite: %d", rec.Code)
	}
	// A ghost movie is a 404.
	if rec := srv.do(t, http.MethodPost, "/users/alice01/favorites/ghost-movie", "", session.Token); rec.Code != http.StatusNotFound {
		t.Fatalf("ghost movie: %d", rec.Code)
	}

	// Catalog reads stay public.
	if rec := srv.do(t, http.MethodGet, "/movies", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("public movie list: %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	metricsBody := srv.do(t, http.MethodGet, "/metrics", "", "")
	if metricsBody.Code != http.StatusOK {
		t.Fatalf("metrics: %d", metricsBody.Code)
	}
	if !strings.Contains(metricsBody.Body.String(), "cineshelf_http_requests_total") {
		t.Fatalf("metrics exposition missing request counter: %s", metricsBody.Body.String())
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := srv.do(t, http.MethodGet, "/movies", "", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" {
		t.Fatalf("missing Content-Security-Policy")
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Fatalf("missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/movies", nil)
	req.Header.Set("X-Request-ID", "req-1234")
	echo := httptest.NewRecorder()
	srv.chain.ServeHTTP(echo, req)
	if got := echo.Header().Get("X-Request-ID"); got != "req-1234" {
		t.Fatalf("request id not echoed: %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Config{CORS: CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}})
	req := httptest.NewRequest(http.MethodOptions, "/movies", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/movies", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.chain.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for unlisted origin: %q", got)
	}
}
