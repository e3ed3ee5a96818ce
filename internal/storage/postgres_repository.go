package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cineshelf/internal/models"
)

const defaultPostgresOpTimeout = 5 * time.Second

const accountColumns = `a.id, a.login_name, a.display_name, a.email, a.password_hash,
	a.birth_date, a.roles, a.created_at, a.updated_at,
	COALESCE(fav.ids, '{}'::TEXT[])`

const accountFavoritesJoin = `LEFT JOIN LATERAL (
	SELECT array_agg(movie_id ORDER BY added_at DESC, movie_id) AS ids
	FROM account_favorites WHERE account_id = a.id
) fav ON TRUE`

const movieColumns = `id, title, description, genre_name, genre_description,
	director_name, director_bio, director_birth_year, image_url, featured,
	release_year, created_at`

// PostgresRepository persists the catalog, accounts, and favorites in
// Postgres. Favorite mutations are single statements, so concurrent requests
// against the same account never lose updates.
type PostgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository connects to dsn, verifies the connection, and applies
// pending schema migrations unless WithoutPostgresMigrations was supplied.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (*PostgresRepository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if !cfg.SkipMigrations {
		if err := MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &PostgresRepository{pool: pool, cfg: cfg}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) opContext() (context.Context, context.CancelFunc) {
	timeout := r.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = defaultPostgresOpTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

// Ping verifies database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func classifyPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			return ErrNotFound
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	var birthDate *time.Time
	var favorites []string
	err := row.Scan(&account.ID, &account.LoginName, &account.DisplayName,
		&account.Email, &account.PasswordHash, &birthDate, &account.Roles,
		&account.CreatedAt, &account.UpdatedAt, &favorites)
	if err != nil {
		return models.Account{}, err
	}
	account.BirthDate = birthDate
	account.Favorites = favorites
	if account.Favorites == nil {
		account.Favorites = []string{}
	}
	return account, nil
}

func (r *PostgresRepository) fetchAccount(ctx context.Context, where string, arg any) (models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts a %s WHERE %s`, accountColumns, accountFavoritesJoin, where)
	return scanAccount(r.pool.QueryRow(ctx, query, arg))
}

// CreateAccount registers a new account; a duplicate login name surfaces as
// ErrConflict via the unique index.
func (r *PostgresRepository) CreateAccount(params CreateAccountParams) (models.Account, error) {
	if err := validateCreateAccount(params); err != nil {
		return models.Account{}, err
	}
	hash, err := hashPassword(params.Password)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}
	ctx, cancel := r.opContext()
	defer cancel()
	now := r.cfg.Clock()
	id := generateID("acct")
	roles := params.Roles
	if roles == nil {
		roles = []string{}
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO accounts
		(id, login_name, display_name, email, password_hash, birth_date, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		id, params.LoginName, params.DisplayName, params.Email, hash, params.BirthDate, roles, now)
	if err != nil {
		classified := classifyPostgresError(err)
		if errors.Is(classified, ErrConflict) {
			return models.Account{}, fmt.Errorf("login name %q: %w", params.LoginName, ErrConflict)
		}
		return models.Account{}, classified
	}
	return r.fetchAccount(ctx, "a.id = $1", id)
}

// GetAccount returns the account with the given ID.
func (r *PostgresRepository) GetAccount(id string) (models.Account, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	account, err := r.fetchAccount(ctx, "a.id = $1", id)
	if err != nil {
		return models.Account{}, false
	}
	return account, true
}

// FindAccountByLogin resolves an account by login name.
func (r *PostgresRepository) FindAccountByLogin(loginName string) (models.Account, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	account, err := r.fetchAccount(ctx, "LOWER(a.login_name) = LOWER($1)", loginName)
	if err != nil {
		return models.Account{}, false
	}
	return account, true
}

// ListAccounts returns every account ordered by creation time.
func (r *PostgresRepository) ListAccounts() []models.Account {
	ctx, cancel := r.opContext()
	defer cancel()
	query := fmt.Sprintf(`SELECT %s FROM accounts a %s ORDER BY a.created_at, a.id`, accountColumns, accountFavoritesJoin)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil
		}
		accounts = append(accounts, account)
	}
	return accounts
}

// UpdateAccount applies the non-nil fields of update inside a transaction.
func (r *PostgresRepository) UpdateAccount(id string, update AccountUpdate) (models.Account, error) {
	if err := validateAccountUpdate(update); err != nil {
		return models.Account{}, err
	}
	ctx, cancel := r.opContext()
	defer cancel()

	assignments := make([]string, 0, 5)
	args := make([]any, 0, 6)
	args = append(args, id)
	next := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if update.DisplayName != nil {
		assignments = append(assignments, "display_name = "+next(*update.DisplayName))
	}
	if update.Email != nil {
		assignments = append(assignments, "email = "+next(*update.Email))
	}
	if update.BirthDate != nil {
		assignments = append(assignments, "birth_date = "+next(*update.BirthDate))
	}
	if update.Roles != nil {
		assignments = append(assignments, "roles = "+next(*update.Roles))
	}
	if update.Password != nil {
		hash, err := hashPassword(*update.Password)
		if err != nil {
			return models.Account{}, fmt.Errorf("hash password: %w", err)
		}
		assignments = append(assignments, "password_hash = "+next(hash))
	}
	assignments = append(assignments, "updated_at = "+next(r.cfg.Clock()))

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $1`, strings.Join(assignments, ", ")), args...)
	if err != nil {
		return models.Account{}, classifyPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return r.fetchAccount(ctx, "a.id = $1", id)
}

// SetAccountPassword replaces the stored credential hash.
func (r *PostgresRepository) SetAccountPassword(id string, password string) error {
	if password == "" {
		validation := newValidationError()
		validation.add("password", "must not be empty")
		return validation
	}
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	ctx, cancel := r.opContext()
	defer cancel()
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, r.cfg.Clock())
	if err != nil {
		return classifyPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAccount removes the account; favorites cascade.
func (r *PostgresRepository) DeleteAccount(id string) error {
	ctx, cancel := r.opContext()
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return classifyPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// AuthenticateAccount verifies the credential for the login name.
func (r *PostgresRepository) AuthenticateAccount(loginName, password string) (models.Account, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	account, err := r.fetchAccount(ctx, "LOWER(a.login_name) = LOWER($1)", loginName)
	if err != nil {
		if errors.Is(classifyPostgresError(err), ErrNotFound) {
			return models.Account{}, ErrInvalidCredentials
		}
		return models.Account{}, classifyPostgresError(err)
	}
	if !verifyPassword(account.PasswordHash, password) {
		return models.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// AddFavorite inserts the favorite in a single statement; ON CONFLICT DO
// NOTHING keeps re-adds idempotent without a read-modify-write cycle.
func (r *PostgresRepository) AddFavorite(accountID, movieID string) (models.Account, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	_, err := r.pool.Exec(ctx, `INSERT INTO account_favorites (account_id, movie_id, added_at)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, accountID, movieID, r.cfg.Clock())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			if strings.Contains(pgErr.ConstraintName, "movie") {
				return models.Account{}, fmt.Errorf("movie %s: %w", movieID, ErrNotFound)
			}
			return models.Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
		}
		return models.Account{}, classifyPostgresError(err)
	}
	account, err := r.fetchAccount(ctx, "a.id = $1", accountID)
	if err != nil {
		return models.Account{}, classifyPostgresError(err)
	}
	return account, nil
}

// RemoveFavorite deletes the favorite in a single statement; removing an
// absent favorite is a successful no-op.
func (r *PostgresRepository) RemoveFavorite(accountID, movieID string) (models.Account, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	if _, err := r.pool.Exec(ctx, `DELETE FROM account_favorites WHERE account_id = $1 AND movie_id = $2`, accountID, movieID); err != nil {
		return models.Account{}, classifyPostgresError(err)
	}
	account, err := r.fetchAccount(ctx, "a.id = $1", accountID)
	if err != nil {
		if errors.Is(classifyPostgresError(err), ErrNotFound) {
			return models.Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
		}
		return models.Account{}, classifyPostgresError(err)
	}
	return account, nil
}

// ListFavoriteMovieIDs returns the account's favorites, most recently added
// first.
func (r *PostgresRepository) ListFavoriteMovieIDs(accountID string) ([]string, error) {
	ctx, cancel := r.opContext()
	defer cancel()
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return nil, classifyPostgresError(err)
	}
	if !exists {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	rows, err := r.pool.Query(ctx, `SELECT movie_id FROM account_favorites
		WHERE account_id = $1 ORDER BY added_at DESC, movie_id`, accountID)
	if err != nil {
		return nil, classifyPostgresError(err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classifyPostgresError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgresError(err)
	}
	return ids, nil
}

func scanMovie(row pgx.Row) (models.Movie, error) {
	var movie models.Movie
	err := row.Scan(&movie.ID, &movie.Title, &movie.Description,
		&movie.Genre.Name, &movie.Genre.Description,
		&movie.Director.Name, &movie.Director.Bio, &movie.Director.BirthYear,
		&movie.ImageURL, &movie.Featured, &movie.ReleaseYear, &movie.CreatedAt)
	return movie, err
}

func (r *PostgresRepository) queryMovies(ctx context.Context, where string, args ...any) []models.Movie {
	query := fmt.Sprintf(`SELECT %s FROM movies %s ORDER BY LOWER(title), id`, movieColumns, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()
	movies := []models.Movie{}
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil
		}
		movies = append(movies, movie)
	}
	return movies
}

// CreateMovie adds a catalog entry; duplicate titles surface as ErrConflict.
func (r *PostgresRepository) CreateMovie(params CreateMovieParams) (models.Movie, error) {
	if err := validateCreateMovie(params); err != nil {
		return models.Movie{}, err
	}
	ctx, cancel := r.opContext()
	defer cancel()
	movie := models.Movie{
		ID:          generateID("mov"),
		Title:       params.Title,
		Description: params.Description,
		Genre:       params.Genre,
		Director:    params.Director,
		ImageURL:    params.ImageURL,
		Featured:    params.Featured,
		ReleaseYear: params.ReleaseYear,
		CreatedAt:   r.cfg.Clock(),
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO movies
		(id, title, description, genre_name, genre_description, director_name,
		director_bio, director_birth_year, image_url, featured, release_year, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		movie.ID, movie.Title, movie.Description, movie.Genre.Name, movie.Genre.Description,
		movie.Director.Name, movie.Director.Bio, movie.Director.BirthYear,
		movie.ImageURL, movie.Featured, movie.ReleaseYear, movie.CreatedAt)
	if err != nil {
		classified := classifyPostgresError(err)
		if errors.Is(classified, ErrConflict) {
			return models.Movie{}, fmt.Errorf("title %q: %w", params.Title, ErrConflict)
		}
		return models.Movie{}, classified
	}
	return movie, nil
}

// GetMovie returns the movie with the given ID.
func (r *PostgresRepository) GetMovie(id string) (models.Movie, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	movie, err := scanMovie(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM movies WHERE id = $1`, movieColumns), id))
	if err != nil {
		return models.Movie{}, false
	}
	return movie, true
}

// FindMovieByTitle resolves a movie by exact title, case-insensitively.
func (r *PostgresRepository) FindMovieByTitle(title string) (models.Movie, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	movie, err := scanMovie(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM movies WHERE LOWER(title) = LOWER($1)`, movieColumns), title))
	if err != nil {
		return models.Movie{}, false
	}
	return movie, true
}

// ListMovies returns catalog entries matching the filter, ordered by title.
func (r *PostgresRepository) ListMovies(filter MovieFilter) []models.Movie {
	ctx, cancel := r.opContext()
	defer cancel()
	if filter.FeaturedOnly {
		return r.queryMovies(ctx, "WHERE featured")
	}
	return r.queryMovies(ctx, "")
}

// ListMoviesByGenre returns catalog entries for the named genre.
func (r *PostgresRepository) ListMoviesByGenre(name string) []models.Movie {
	ctx, cancel := r.opContext()
	defer cancel()
	return r.queryMovies(ctx, "WHERE LOWER(genre_name) = LOWER($1)", name)
}

// ListMoviesByDirector returns catalog entries credited to the director.
func (r *PostgresRepository) ListMoviesByDirector(name string) []models.Movie {
	ctx, cancel := r.opContext()
	defer cancel()
	return r.queryMovies(ctx, "WHERE LOWER(director_name) = LOWER($1)", name)
}

// GetDirector returns the director record from any catalog entry crediting
// the named director.
func (r *PostgresRepository) GetDirector(name string) (models.Director, bool) {
	ctx, cancel := r.opContext()
	defer cancel()
	var director models.Director
	err := r.pool.QueryRow(ctx, `SELECT director_name, director_bio, director_birth_year
		FROM movies WHERE LOWER(director_name) = LOWER($1) ORDER BY created_at LIMIT 1`, name).
		Scan(&director.Name, &director.Bio, &director.BirthYear)
	if err != nil {
		return models.Director{}, false
	}
	return director, true
}

var _ Repository = (*PostgresRepository)(nil)
