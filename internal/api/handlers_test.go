package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"cineshelf/internal/accounts"
	"cineshelf/internal/auth"
	"cineshelf/internal/models"
	"cineshelf/internal/observability/metrics"
	"cineshelf/internal/storage"
)

type testAPI struct {
	handler  *Handler
	store    *storage.Storage
	sessions *auth.SessionManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	sessions := auth.NewSessionManager()
	service := accounts.NewService(store, store)
	handler := NewHandler(HandlerConfig{
		Store:           store,
		Accounts:        service,
		Sessions:        sessions,
		AllowSelfSignup: true,
		Metrics:         metrics.NewRecorder(),
	})
	return &testAPI{handler: handler, store: store, sessions: sessions}
}

func (a *testAPI) createAccount(t *testing.T, loginName string, roles ...string) models.Account {
	t.Helper()
	account, err := a.store.CreateAccount(storage.CreateAccountParams{
		LoginName: loginName,
		Email:     loginName + "@example.com",
		Password:  "secret1",
		Roles:     roles,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", loginName, err)
	}
	return account
}

func (a *testAPI) createMovie(t *testing.T, title, genre, director string) models.Movie {
	t.Helper()
	movie, err := a.store.CreateMovie(storage.CreateMovieParams{
		Title:    title,
		Genre:    models.Genre{Name: genre},
		Director: models.Director{Name: director},
	})
	if err != nil {
		t.Fatalf("CreateMovie(%s): %v", title, err)
	}
	return movie
}

func requestAs(t *testing.T, account models.Account, method, target, body string) *http.Request {
	t.Helper()
	req := newRequest(method, target, body)
	return req.WithContext(ContextWithAccount(req.Context(), account))
}

func newRequest(method, target, body string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestWelcome(t *testing.T) {
	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	a.handler.Welcome(rec, newRequest(http.MethodGet, "/", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Welcome") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.Welcome(rec, newRequest(http.MethodGet, "/nope", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unrouted path, got %d", rec.Code)
	}
}

func TestMoviesEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.createMovie(t, "The Lives of Others", "Drama", "Florian Henckel von Donnersmarck")
	a.createMovie(t, "The Killing of a Sacred Deer", "Thriller", "Yorgos Lanthimos")

	rec := httptest.NewRecorder()
	a.handler.Movies(rec, newRequest(http.MethodGet, "/movies", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var movies []models.Movie
	decodeBody(t, rec, &movies)
	if len(movies) != 2 {
		t.Fatalf("expected 2 movies, got %d", len(movies))
	}

	rec = httptest.NewRecorder()
	a.handler.MovieSubresource(rec, newRequest(http.MethodGet, "/movies/title/the%20lives%20of%20others", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("title status %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.MovieSubresource(rec, newRequest(http.MethodGet, "/movies/title/Unknown", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown title, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.MovieSubresource(rec, newRequest(http.MethodGet, "/movies/genre/Thriller", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("genre status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.MovieSubresource(rec, newRequest(http.MethodGet, "/movies/genre/Horror", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty genre, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.MovieSubresource(rec, newRequest(http.MethodGet, "/movies/director/Yorgos%20Lanthimos", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("director status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.DirectorByName(rec, newRequest(http.MethodGet, "/directors/Yorgos%20Lanthimos", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("director bio status %d", rec.Code)
	}
	var director models.Director
	decodeBody(t, rec, &director)
	if director.Name != "Yorgos Lanthimos" {
		t.Fatalf("wrong director: %+v", director)
	}
}

func TestCreateAccountEndpoint(t *testing.T) {
	a := newTestAPI(t)
	body := `{"loginName":"alice01","email":"alice@example.com","password":"secret1","birthDate":"1990-04-02"}`

	rec := httptest.NewRecorder()
	a.handler.Accounts(rec, newRequest(http.MethodPost, "/users", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "passwordHash") {
		t.Fatalf("credential hash leaked: %s", rec.Body.String())
	}
	var created accountResponse
	decodeBody(t, rec, &created)
	if created.LoginName != "alice01" || created.Favorites == nil {
		t.Fatalf("unexpected response: %+v", created)
	}
	if created.BirthDate == nil || *created.BirthDate != "1990-04-02" {
		t.Fatalf("birth date mangled: %+v", created.BirthDate)
	}

	// A second create with the same login name conflicts.
	rec = httptest.NewRecorder()
	a.handler.Accounts(rec, newRequest(http.MethodPost, "/users", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate login, got %d", rec.Code)
	}
}

func TestCreateAccountValidationResponse(t *testing.T) {
	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	a.handler.Accounts(rec, newRequest(http.MethodPost, "/users", `{"loginName":"ab","email":"bad","password":""}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec, &payload)
	if len(payload.Fields) == 0 {
		t.Fatalf("expected field messages, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.Accounts(rec, newRequest(http.MethodPost, "/users", `{"loginName":"alice01","email":"a@example.com","password":"x","birthDate":"02/04/1990"}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad birth date, got %d", rec.Code)
	}
}

func TestAccountResource(t *testing.T) {
	a := newTestAPI(t)
	alice := a.createAccount(t, "alice01")
	bob := a.createAccount(t, "bobby1")

	rec := httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodGet, "/users/alice01", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, bob, http.MethodGet, "/users/alice01", ""))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodPut, "/users/alice01", `{"displayName":"Alice"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body.String())
	}
	var updated accountResponse
	decodeBody(t, rec, &updated)
	if updated.DisplayName != "Alice" {
		t.Fatalf("update not applied: %+v", updated)
	}

	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodDelete, "/users/alice01", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "alice01 was deleted.") {
		t.Fatalf("unexpected delete confirmation: %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodGet, "/users/alice01", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestUnauthenticatedAccountAccess(t *testing.T) {
	a := newTestAPI(t)
	a.createAccount(t, "alice01")
	rec := httptest.NewRecorder()
	a.handler.AccountByLogin(rec, newRequest(http.MethodGet, "/users/alice01", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestFavoritesEndpoints(t *testing.T) {
	a := newTestAPI(t)
	alice := a.createAccount(t, "alice01")
	bob := a.createAccount(t, "bobby1")
	movie := a.createMovie(t, "In the Mood for Love", "Romance", "Wong Kar-wai")

	addPath := "/users/alice01/favorites/" + movie.ID
	rec := httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodPost, addPath, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("add status %d: %s", rec.Code, rec.Body.String())
	}
	var account accountResponse
	decodeBody(t, rec, &account)
	if len(account.Favorites) != 1 || account.Favorites[0] != movie.ID {
		t.Fatalf("favorites after add: %v", account.Favorites)
	}

	// Re-adding succeeds and leaves the set unchanged.
	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodPost, addPath, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("re-add status %d", rec.Code)
	}
	decodeBody(t, rec, &account)
	if len(account.Favorites) != 1 {
		t.Fatalf("re-add duplicated the favorite: %v", account.Favorites)
	}

	// A ghost movie is a 404.
	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodPost, "/users/alice01/favorites/ghost-movie", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for ghost movie, got %d", rec.Code)
	}

	// Strangers are forbidden.
	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, bob, http.MethodPost, addPath, ""))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rec.Code)
	}

	// Listing resolves catalog entries.
	rec = httptest.NewRecorder()
	a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodGet, "/users/alice01/favorites", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var favorites []models.Movie
	decodeBody(t, rec, &favorites)
	if len(favorites) != 1 || favorites[0].Title != "In the Mood for Love" {
		t.Fatalf("favorites listing: %+v", favorites)
	}

	// Removing, then removing again, both succeed.
	removePath := "/users/alice01/movies/" + movie.ID
	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		a.handler.AccountByLogin(rec, requestAs(t, alice, http.MethodDelete, removePath, ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("remove status %d (round %d)", rec.Code, i)
		}
	}
	decodeBody(t, rec, &account)
	if len(account.Favorites) != 0 {
		t.Fatalf("favorites after remove: %v", account.Favorites)
	}
}

func TestLoginAndSession(t *testing.T) {
	a := newTestAPI(t)
	a.createAccount(t, "alice01")

	rec := httptest.NewRecorder()
	a.handler.Login(rec, newRequest(http.MethodPost, "/auth/login", `{"loginName":"alice01","password":"wrong"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.Login(rec, newRequest(http.MethodPost, "/auth/login", `{"loginName":"alice01","password":"secret1"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token   string          `json:"token"`
		Account accountResponse `json:"account"`
	}
	decodeBody(t, rec, &login)
	if login.Token == "" {
		t.Fatalf("no token issued")
	}
	cookieSet := false
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == SessionCookieName && cookie.Value == login.Token {
			cookieSet = true
		}
	}
	if !cookieSet {
		t.Fatalf("session cookie not set")
	}

	probe := newRequest(http.MethodGet, "/auth/session", "")
	probe.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	a.handler.Session(rec, probe)
	if rec.Code != http.StatusOK {
		t.Fatalf("session probe status %d", rec.Code)
	}

	logout := newRequest(http.MethodDelete, "/auth/session", "")
	logout.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	a.handler.Session(rec, logout)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status %d", rec.Code)
	}

	probe = newRequest(http.MethodGet, "/auth/session", "")
	probe.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	a.handler.Session(rec, probe)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	a.handler.Health(rec, newRequest(http.MethodGet, "/healthz", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &payload)
	if payload.Status != "ok" {
		t.Fatalf("unexpected health payload: %s", rec.Body.String())
	}
}
