package models

import "time"

// Account represents a registered user of the catalog. PasswordHash holds the
// encoded credential digest and must never be serialized into API responses.
type Account struct {
	ID           string     `json:"id"`
	LoginName    string     `json:"loginName"`
	DisplayName  string     `json:"displayName,omitempty"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	Roles        []string   `json:"roles,omitempty"`
	Favorites    []string   `json:"favorites"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// HasRole reports whether the account carries the named role.
func (a Account) HasRole(role string) bool {
	for _, candidate := range a.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// HasFavorite reports whether the movie already appears in the account's
// favorites set.
func (a Account) HasFavorite(movieID string) bool {
	for _, candidate := range a.Favorites {
		if candidate == movieID {
			return true
		}
	}
	return false
}

// Genre labels a movie with a short description shown alongside listings.
type Genre struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Director carries the biographical blurb surfaced by the directors endpoint.
type Director struct {
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	BirthYear int    `json:"birthYear,omitempty"`
}

// Movie is a single catalog entry. Titles are unique across the catalog.
type Movie struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Genre       Genre     `json:"genre"`
	Director    Director  `json:"director"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Featured    bool      `json:"featured"`
	ReleaseYear int       `json:"releaseYear,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
