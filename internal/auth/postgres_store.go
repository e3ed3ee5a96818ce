package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresStoreTimeout = 5 * time.Second

// PostgresSessionStore persists sessions in the sessions table so tokens
// survive restarts and are shared across replicas.
type PostgresSessionStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// PostgresStoreOption customises a PostgresSessionStore.
type PostgresStoreOption func(*PostgresSessionStore)

// WithTimeout bounds each store operation.
func WithTimeout(timeout time.Duration) PostgresStoreOption {
	return func(s *PostgresSessionStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewPostgresSessionStore connects to dsn and verifies the connection. The
// sessions table is created by the storage migrations.
func NewPostgresSessionStore(ctx context.Context, dsn string, opts ...PostgresStoreOption) (*PostgresSessionStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create session pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping session store: %w", err)
	}
	store := &PostgresSessionStore{pool: pool, timeout: defaultPostgresStoreTimeout}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *PostgresSessionStore) Close() {
	s.pool.Close()
}

func (s *PostgresSessionStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Save upserts the session record.
func (s *PostgresSessionStore) Save(record SessionRecord) error {
	ctx, cancel := s.opContext()
	defer cancel()
	_, err := s.pool.Exec(ctx, `INSERT INTO sessions (token, account_id, expires_at, absolute_expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		record.Token, record.AccountID, record.ExpiresAt, record.AbsoluteExpiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get retrieves the session record for the provided token.
func (s *PostgresSessionStore) Get(token string) (SessionRecord, bool, error) {
	ctx, cancel := s.opContext()
	defer cancel()
	record := SessionRecord{Token: token}
	err := s.pool.QueryRow(ctx, `SELECT account_id, expires_at, absolute_expires_at
		FROM sessions WHERE token = $1`, token).
		Scan(&record.AccountID, &record.ExpiresAt, &record.AbsoluteExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, fmt.Errorf("load session: %w", err)
	}
	return record, true, nil
}

// Delete removes the session token from the store.
func (s *PostgresSessionStore) Delete(token string) error {
	ctx, cancel := s.opContext()
	defer cancel()
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes any expired sessions from the store.
func (s *PostgresSessionStore) PurgeExpired(now time.Time) error {
	ctx, cancel := s.opContext()
	defer cancel()
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1 OR absolute_expires_at < $1`, now); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresSessionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ SessionStore = (*PostgresSessionStore)(nil)
