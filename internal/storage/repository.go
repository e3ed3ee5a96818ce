package storage

import (
	"context"
	"time"

	"cineshelf/internal/models"
)

// CreateAccountParams captures the fields accepted at registration time.
type CreateAccountParams struct {
	LoginName   string
	DisplayName string
	Email       string
	Password    string
	BirthDate   *time.Time
	Roles       []string
}

// AccountUpdate mutates the provided fields; nil pointers leave the stored
// value untouched.
type AccountUpdate struct {
	DisplayName *string
	Email       *string
	Password    *string
	BirthDate   *time.Time
	Roles       *[]string
}

// CreateMovieParams captures the fields accepted when curating the catalog.
type CreateMovieParams struct {
	Title       string
	Description string
	Genre       models.Genre
	Director    models.Director
	ImageURL    string
	Featured    bool
	ReleaseYear int
}

// MovieFilter narrows ListMovies results. Zero value lists everything.
type MovieFilter struct {
	FeaturedOnly bool
}

// Repository describes the persistence operations required by the API
// handlers and the accounts service. Implementations must be safe for
// concurrent use and must keep every mutation atomic: no caller performs a
// read-modify-write cycle on top of this contract.
type Repository interface {
	Ping(ctx context.Context) error

	CreateAccount(params CreateAccountParams) (models.Account, error)
	GetAccount(id string) (models.Account, bool)
	FindAccountByLogin(loginName string) (models.Account, bool)
	ListAccounts() []models.Account
	UpdateAccount(id string, update AccountUpdate) (models.Account, error)
	SetAccountPassword(id string, password string) error
	DeleteAccount(id string) error
	AuthenticateAccount(loginName, password string) (models.Account, error)

	AddFavorite(accountID, movieID string) (models.Account, error)
	RemoveFavorite(accountID, movieID string) (models.Account, error)
	ListFavoriteMovieIDs(accountID string) ([]string, error)

	CreateMovie(params CreateMovieParams) (models.Movie, error)
	GetMovie(id string) (models.Movie, bool)
	FindMovieByTitle(title string) (models.Movie, bool)
	ListMovies(filter MovieFilter) []models.Movie
	ListMoviesByGenre(name string) []models.Movie
	ListMoviesByDirector(name string) []models.Movie
	GetDirector(name string) (models.Director, bool)
}

var _ Repository = (*Storage)(nil)
