package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/cases"

	"cineshelf/internal/models"
)

const (
	passwordIterations = 120000
	passwordSaltLength = 16
	passwordKeyLength  = 32
)

var lookupFold = cases.Fold()

// foldKey produces the case-insensitive key used for title, genre, and
// director lookups.
func foldKey(value string) string {
	return lookupFold.String(strings.TrimSpace(value))
}

type dataset struct {
	Accounts  map[string]models.Account       `json:"accounts"`
	Movies    map[string]models.Movie         `json:"movies"`
	Favorites map[string]map[string]time.Time `json:"favorites"`
}

func (d *dataset) ensure() {
	if d.Accounts == nil {
		d.Accounts = make(map[string]models.Account)
	}
	if d.Movies == nil {
		d.Movies = make(map[string]models.Movie)
	}
	if d.Favorites == nil {
		d.Favorites = make(map[string]map[string]time.Time)
	}
}

func cloneDataset(src dataset) dataset {
	dst := dataset{
		Accounts:  make(map[string]models.Account, len(src.Accounts)),
		Movies:    make(map[string]models.Movie, len(src.Movies)),
		Favorites: make(map[string]map[string]time.Time, len(src.Favorites)),
	}
	for id, account := range src.Accounts {
		dst.Accounts[id] = account
	}
	for id, movie := range src.Movies {
		dst.Movies[id] = movie
	}
	for accountID, favorites := range src.Favorites {
		copied := make(map[string]time.Time, len(favorites))
		for movieID, addedAt := range favorites {
			copied[movieID] = addedAt
		}
		dst.Favorites[accountID] = copied
	}
	return dst
}

// Storage is the JSON-file backed Repository implementation. Every mutation
// clones the in-memory dataset, persists the clone to disk, and only then
// swaps it in, so a failed write never leaves partial state behind.
type Storage struct {
	mu   sync.RWMutex
	path string
	data dataset
	now  func() time.Time

	// persistOverride replaces file persistence in tests.
	persistOverride func(dataset) error
}

// NewStorage loads (or initialises) the dataset at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	cfg := newJSONConfig(opts...)
	s := &Storage{path: path, now: cfg.Clock}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data.ensure()
			return nil
		}
		return fmt.Errorf("read dataset: %w", err)
	}
	if len(raw) == 0 {
		s.data.ensure()
		return nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("decode dataset: %w", err)
	}
	s.data.ensure()
	return nil
}

func (s *Storage) persist(next dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(next); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}
	payload, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, "cineshelf-*.json")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping reports whether the dataset file's directory is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func generateID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}

// snapshotAccountLocked returns the account with its favorites populated,
// ordered most recently added first. Callers must hold at least a read lock.
func (s *Storage) snapshotAccountLocked(id string) (models.Account, bool) {
	account, ok := s.data.Accounts[id]
	if !ok {
		return models.Account{}, false
	}
	account.Favorites = s.favoriteIDsLocked(id)
	account.Roles = append([]string(nil), account.Roles...)
	return account, true
}

func (s *Storage) favoriteIDsLocked(accountID string) []string {
	favorites := s.data.Favorites[accountID]
	ids := make([]string, 0, len(favorites))
	for movieID := range favorites {
		ids = append(ids, movieID)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := favorites[ids[i]], favorites[ids[j]]
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.After(b)
	})
	return ids
}

// CreateAccount registers a new account. The login name must be unique; the
// credential is hashed before it is stored.
func (s *Storage) CreateAccount(params CreateAccountParams) (models.Account, error) {
	if err := validateCreateAccount(params); err != nil {
		return models.Account{}, err
	}
	hash, err := hashPassword(params.Password)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.Accounts {
		if strings.EqualFold(existing.LoginName, params.LoginName) {
			return models.Account{}, fmt.Errorf("login name %q: %w", params.LoginName, ErrConflict)
		}
	}
	now := s.now()
	account := models.Account{
		ID:           generateID("acct"),
		LoginName:    params.LoginName,
		DisplayName:  params.DisplayName,
		Email:        params.Email,
		PasswordHash: hash,
		BirthDate:    params.BirthDate,
		Roles:        append([]string(nil), params.Roles...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	next := cloneDataset(s.data)
	next.Accounts[account.ID] = account
	if err := s.persist(next); err != nil {
		return models.Account{}, err
	}
	s.data = next
	snapshot, _ := s.snapshotAccountLocked(account.ID)
	return snapshot, nil
}

// GetAccount returns the account with the given ID.
func (s *Storage) GetAccount(id string) (models.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotAccountLocked(id)
}

// FindAccountByLogin resolves an account by its login name.
func (s *Storage) FindAccountByLogin(loginName string) (models.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, account := range s.data.Accounts {
		if strings.EqualFold(account.LoginName, loginName) {
			return s.snapshotAccountLocked(id)
		}
	}
	return models.Account{}, false
}

// ListAccounts returns every account ordered by creation time.
func (s *Storage) ListAccounts() []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]models.Account, 0, len(s.data.Accounts))
	for id := range s.data.Accounts {
		snapshot, _ := s.snapshotAccountLocked(id)
		accounts = append(accounts, snapshot)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts
}

// UpdateAccount applies the non-nil fields of update. The login name is
// immutable; a supplied password is re-hashed.
func (s *Storage) UpdateAccount(id string, update AccountUpdate) (models.Account, error) {
	if err := validateAccountUpdate(update); err != nil {
		return models.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.data.Accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if update.DisplayName != nil {
		account.DisplayName = *update.DisplayName
	}
	if update.Email != nil {
		account.Email = *update.Email
	}
	if update.BirthDate != nil {
		birthDate := *update.BirthDate
		account.BirthDate = &birthDate
	}
	if update.Roles != nil {
		account.Roles = append([]string(nil), (*update.Roles)...)
	}
	if update.Password != nil {
		hash, err := hashPassword(*update.Password)
		if err != nil {
			return models.Account{}, fmt.Errorf("hash password: %w", err)
		}
		account.PasswordHash = hash
	}
	account.UpdatedAt = s.now()

	next := cloneDataset(s.data)
	next.Accounts[id] = account
	if err := s.persist(next); err != nil {
		return models.Account{}, err
	}
	s.data = next
	snapshot, _ := s.snapshotAccountLocked(id)
	return snapshot, nil
}

// SetAccountPassword replaces the stored credential hash.
func (s *Storage) SetAccountPassword(id string, password string) error {
	if password == "" {
		validation := newValidationError()
		validation.add("password", "must not be empty")
		return validation
	}
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.data.Accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	account.PasswordHash = hash
	account.UpdatedAt = s.now()
	next := cloneDataset(s.data)
	next.Accounts[id] = account
	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// DeleteAccount removes the account and its favorites.
func (s *Storage) DeleteAccount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	next := cloneDataset(s.data)
	delete(next.Accounts, id)
	delete(next.Favorites, id)
	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// AuthenticateAccount verifies the credential for the login name. Failures
// never distinguish an unknown login from a wrong password.
func (s *Storage) AuthenticateAccount(loginName, password string) (models.Account, error) {
	// Copy the hash out so key derivation runs without holding the lock.
	var matchedID, matchedHash string
	s.mu.RLock()
	for id, account := range s.data.Accounts {
		if strings.EqualFold(account.LoginName, loginName) {
			matchedID = id
			matchedHash = account.PasswordHash
			break
		}
	}
	s.mu.RUnlock()

	if matchedID == "" || !verifyPassword(matchedHash, password) {
		return models.Account{}, ErrInvalidCredentials
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshotAccountLocked(matchedID)
	if !ok {
		return models.Account{}, ErrInvalidCredentials
	}
	return snapshot, nil
}

// AddFavorite inserts the movie into the account's favorites set. Re-adding
// an existing favorite is a successful no-op.
func (s *Storage) AddFavorite(accountID, movieID string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Accounts[accountID]; !ok {
		return models.Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if _, ok := s.data.Movies[movieID]; !ok {
		return models.Account{}, fmt.Errorf("movie %s: %w", movieID, ErrNotFound)
	}
	if _, ok := s.data.Favorites[accountID][movieID]; ok {
		snapshot, _ := s.snapshotAccountLocked(accountID)
		return snapshot, nil
	}
	next := cloneDataset(s.data)
	if next.Favorites[accountID] == nil {
		next.Favorites[accountID] = make(map[string]time.Time)
	}
	next.Favorites[accountID][movieID] = s.now()
	if err := s.persist(next); err != nil {
		return models.Account{}, err
	}
	s.data = next
	snapshot, _ := s.snapshotAccountLocked(accountID)
	return snapshot, nil
}

// RemoveFavorite deletes the movie from the account's favorites set. Removing
// an absent favorite is a successful no-op.
func (s *Storage) RemoveFavorite(accountID, movieID string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Accounts[accountID]; !ok {
		return models.Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if _, ok := s.data.Favorites[accountID][movieID]; !ok {
		snapshot, _ := s.snapshotAccountLocked(accountID)
		return snapshot, nil
	}
	next := cloneDataset(s.data)
	delete(next.Favorites[accountID], movieID)
	if len(next.Favorites[accountID]) == 0 {
		delete(next.Favorites, accountID)
	}
	if err := s.persist(next); err != nil {
		return models.Account{}, err
	}
	s.data = next
	snapshot, _ := s.snapshotAccountLocked(accountID)
	return snapshot, nil
}

// ListFavoriteMovieIDs returns the account's favorite movie IDs, most
// recently added first.
func (s *Storage) ListFavoriteMovieIDs(accountID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data.Accounts[accountID]; !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return s.favoriteIDsLocked(accountID), nil
}

// CreateMovie adds a catalog entry. Titles are unique, compared
// case-insensitively.
func (s *Storage) CreateMovie(params CreateMovieParams) (models.Movie, error) {
	if err := validateCreateMovie(params); err != nil {
		return models.Movie{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	titleKey := foldKey(params.Title)
	for _, existing := range s.data.Movies {
		if foldKey(existing.Title) == titleKey {
			return models.Movie{}, fmt.Errorf("title %q: %w", params.Title, ErrConflict)
		}
	}
	movie := models.Movie{
		ID:          generateID("mov"),
		Title:       params.Title,
		Description: params.Description,
		Genre:       params.Genre,
		Director:    params.Director,
		ImageURL:    params.ImageURL,
		Featured:    params.Featured,
		ReleaseYear: params.ReleaseYear,
		CreatedAt:   s.now(),
	}
	next := cloneDataset(s.data)
	next.Movies[movie.ID] = movie
	if err := s.persist(next); err != nil {
		return models.Movie{}, err
	}
	s.data = next
	return movie, nil
}

// GetMovie returns the movie with the given ID.
func (s *Storage) GetMovie(id string) (models.Movie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	movie, ok := s.data.Movies[id]
	return movie, ok
}

// FindMovieByTitle resolves a movie by exact title, compared
// case-insensitively.
func (s *Storage) FindMovieByTitle(title string) (models.Movie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	titleKey := foldKey(title)
	for _, movie := range s.data.Movies {
		if foldKey(movie.Title) == titleKey {
			return movie, true
		}
	}
	return models.Movie{}, false
}

// ListMovies returns catalog entries matching the filter, ordered by title.
func (s *Storage) ListMovies(filter MovieFilter) []models.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	movies := make([]models.Movie, 0, len(s.data.Movies))
	for _, movie := range s.data.Movies {
		if filter.FeaturedOnly && !movie.Featured {
			continue
		}
		movies = append(movies, movie)
	}
	sortMoviesByTitle(movies)
	return movies
}

// ListMoviesByGenre returns catalog entries for the named genre.
func (s *Storage) ListMoviesByGenre(name string) []models.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := foldKey(name)
	movies := make([]models.Movie, 0)
	for _, movie := range s.data.Movies {
		if foldKey(movie.Genre.Name) == key {
			movies = append(movies, movie)
		}
	}
	sortMoviesByTitle(movies)
	return movies
}

// ListMoviesByDirector returns catalog entries credited to the named
// director.
func (s *Storage) ListMoviesByDirector(name string) []models.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := foldKey(name)
	movies := make([]models.Movie, 0)
	for _, movie := range s.data.Movies {
		if foldKey(movie.Director.Name) == key {
			movies = append(movies, movie)
		}
	}
	sortMoviesByTitle(movies)
	return movies
}

// GetDirector returns the director record attached to any catalog entry
// crediting the named director.
func (s *Storage) GetDirector(name string) (models.Director, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := foldKey(name)
	for _, movie := range s.data.Movies {
		if foldKey(movie.Director.Name) == key {
			return movie.Director, true
		}
	}
	return models.Director{}, false
}

func sortMoviesByTitle(movies []models.Movie) {
	sort.Slice(movies, func(i, j int) bool {
		a, b := foldKey(movies[i].Title), foldKey(movies[j].Title)
		if a == b {
			return movies[i].ID < movies[j].ID
		}
		return a < b
	})
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), salt, passwordIterations, passwordKeyLength, sha256.New)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", passwordIterations, hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

func verifyPassword(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return false
	}
	iterations := 0
	if _, err := fmt.Sscanf(parts[2], "%d", &iterations); err != nil || iterations <= 0 {
		return false
	}
	salt, err := hex.DecodeString(parts[3])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(parts[4])
	if err != nil {
		return false
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(key, expected) == 1
}
