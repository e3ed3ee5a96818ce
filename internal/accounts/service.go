// Package accounts mediates every account and favorites mutation: it
// authorizes the requesting principal, validates referential integrity
// against the catalog, performs at most one store mutation per call, and
// normalizes store results into the shared error taxonomy.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"cineshelf/internal/models"
	"cineshelf/internal/storage"
)

// RoleAdmin is the stored role allowing an account to act on other accounts.
const RoleAdmin = "admin"

// ErrForbidden indicates the principal is not allowed to act on the target
// account. No store write happens when it is returned.
var ErrForbidden = errors.New("operation not permitted")

const defaultResolveConcurrency = 8

// Catalog is the read-only view of the movie store the service needs.
type Catalog interface {
	GetMovie(id string) (models.Movie, bool)
}

// Accounts is the slice of the account store the service mutates through.
type Accounts interface {
	CreateAccount(params storage.CreateAccountParams) (models.Account, error)
	FindAccountByLogin(loginName string) (models.Account, bool)
	UpdateAccount(id string, update storage.AccountUpdate) (models.Account, error)
	DeleteAccount(id string) error
	AddFavorite(accountID, movieID string) (models.Account, error)
	RemoveFavorite(accountID, movieID string) (models.Account, error)
	ListFavoriteMovieIDs(accountID string) ([]string, error)
}

// Service implements the account and favorites operations exposed by the API.
type Service struct {
	catalog            Catalog
	accounts           Accounts
	logger             *slog.Logger
	resolveConcurrency int
}

// Option customises a Service.
type Option func(*Service)

// WithLogger attaches a structured logger; dangling favorite references are
// reported through it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResolveConcurrency bounds how many favorite references resolve in
// parallel during ListFavorites.
func WithResolveConcurrency(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.resolveConcurrency = limit
		}
	}
}

// NewService wires the service over its two store contracts.
func NewService(catalog Catalog, accounts Accounts, opts ...Option) *Service {
	s := &Service{
		catalog:            catalog,
		accounts:           accounts,
		logger:             slog.Default(),
		resolveConcurrency: defaultResolveConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// canManage reports whether the principal may read or mutate the target
// account: the account itself, or a holder of the admin role.
func canManage(principal models.Account, loginName string) bool {
	if equalLogin(principal.LoginName, loginName) {
		return true
	}
	return principal.HasRole(RoleAdmin)
}

func equalLogin(a, b string) bool {
	return strings.EqualFold(a, b)
}

func (s *Service) findAccount(loginName string) (models.Account, error) {
	account, ok := s.accounts.FindAccountByLogin(loginName)
	if !ok {
		return models.Account{}, fmt.Errorf("account %q: %w", loginName, storage.ErrNotFound)
	}
	return account, nil
}

// Create registers a new account. Validation and login-name uniqueness are
// enforced by the store.
func (s *Service) Create(params storage.CreateAccountParams) (models.Account, error) {
	return s.accounts.CreateAccount(params)
}

// Get returns the target account for the principal (self or admin).
func (s *Service) Get(principal models.Account, loginName string) (models.Account, error) {
	if !canManage(principal, loginName) {
		return models.Account{}, ErrForbidden
	}
	return s.findAccount(loginName)
}

// Update applies the supplied fields to the target account. Updates are
// strictly self-service: even administrators may not edit another account's
// profile through this path.
func (s *Service) Update(principal models.Account, loginName string, update storage.AccountUpdate) (models.Account, error) {
	if !equalLogin(principal.LoginName, loginName) {
		return models.Account{}, ErrForbidden
	}
	account, err := s.findAccount(loginName)
	if err != nil {
		return models.Account{}, err
	}
	return s.accounts.UpdateAccount(account.ID, update)
}

// Delete removes the target account (self or admin).
func (s *Service) Delete(principal models.Account, loginName string) error {
	if !canManage(principal, loginName) {
		return ErrForbidden
	}
	account, err := s.findAccount(loginName)
	if err != nil {
		return err
	}
	return s.accounts.DeleteAccount(account.ID)
}

// AddFavorite inserts the movie into the target account's favorites set.
// Re-adding an existing favorite succeeds and returns the unchanged account.
func (s *Service) AddFavorite(principal models.Account, loginName, movieID string) (models.Account, error) {
	if !canManage(principal, loginName) {
		return models.Account{}, ErrForbidden
	}
	account, err := s.findAccount(loginName)
	if err != nil {
		return models.Account{}, err
	}
	if _, ok := s.catalog.GetMovie(movieID); !ok {
		return models.Account{}, fmt.Errorf("movie %s: %w", movieID, storage.ErrNotFound)
	}
	return s.accounts.AddFavorite(account.ID, movieID)
}

// RemoveFavorite deletes the movie from the target account's favorites set.
// Removing an absent favorite succeeds and returns the unchanged account.
func (s *Service) RemoveFavorite(principal models.Account, loginName, movieID string) (models.Account, error) {
	if !canManage(principal, loginName) {
		return models.Account{}, ErrForbidden
	}
	account, err := s.findAccount(loginName)
	if err != nil {
		return models.Account{}, err
	}
	return s.accounts.RemoveFavorite(account.ID, movieID)
}

// ListFavorites resolves the target account's favorites against the catalog.
// References are resolved concurrently; favorites pointing at movies no
// longer in the catalog are dropped from the result and logged.
func (s *Service) ListFavorites(ctx context.Context, principal models.Account, loginName string) ([]models.Movie, error) {
	if !canManage(principal, loginName) {
		return nil, ErrForbidden
	}
	account, err := s.findAccount(loginName)
	if err != nil {
		return nil, err
	}
	ids, err := s.accounts.ListFavoriteMovieIDs(account.ID)
	if err != nil {
		return nil, err
	}

	resolved := make([]*models.Movie, len(ids))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.resolveConcurrency)
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			if movie, ok := s.catalog.GetMovie(id); ok {
				resolved[i] = &movie
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	movies := make([]models.Movie, 0, len(ids))
	for i, movie := range resolved {
		if movie == nil {
			s.logger.Warn("dropping favorite with no catalog entry",
				"accountId", account.ID, "movieId", ids[i])
			continue
		}
		movies = append(movies, *movie)
	}
	return movies, nil
}
