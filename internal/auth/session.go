// Package auth issues and validates opaque session tokens over a pluggable
// store.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	defaultTokenLength = 32
	defaultSessionTTL  = 24 * time.Hour
)

// ErrSessionStoreUnavailable indicates the backing session store could not be
// reached.
var ErrSessionStoreUnavailable = errors.New("session store unavailable")

// SessionRecord is the persisted form of a session. ExpiresAt slides forward
// on use when an idle timeout is configured; AbsoluteExpiresAt never moves.
type SessionRecord struct {
	Token             string
	AccountID         string
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
}

// SessionStore persists session records. Implementations must be safe for
// concurrent use.
type SessionStore interface {
	Save(record SessionRecord) error
	Get(token string) (SessionRecord, bool, error)
	Delete(token string) error
	PurgeExpired(now time.Time) error
	Ping(ctx context.Context) error
}

// Session is the caller-facing view of an issued token.
type Session struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
}

// SessionManager issues opaque tokens with an absolute TTL and an optional
// idle timeout.
type SessionManager struct {
	store       SessionStore
	tokenLength int
	ttl         time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// SessionOption customises a SessionManager.
type SessionOption func(*SessionManager)

// WithStore replaces the default in-memory session store.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithTokenLength sets the token length in random bytes.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// WithTTL sets the absolute session lifetime.
func WithTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithIdleTimeout expires sessions that go unused for the given duration.
// Zero disables idle expiry.
func WithIdleTimeout(timeout time.Duration) SessionOption {
	return func(m *SessionManager) {
		if timeout >= 0 {
			m.idleTimeout = timeout
		}
	}
}

// WithSessionClock overrides the time source. Intended for tests.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewSessionManager constructs a manager backed by an in-memory store unless
// WithStore supplies another.
func NewSessionManager(opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:       NewMemorySessionStore(),
		tokenLength: defaultTokenLength,
		ttl:         defaultSessionTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SessionManager) generateToken() (string, error) {
	buf := make([]byte, m.tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create issues a new session for the account.
func (m *SessionManager) Create(accountID string) (Session, error) {
	token, err := m.generateToken()
	if err != nil {
		return Session{}, err
	}
	now := m.now()
	absolute := now.Add(m.ttl)
	expires := absolute
	if m.idleTimeout > 0 && now.Add(m.idleTimeout).Before(absolute) {
		expires = now.Add(m.idleTimeout)
	}
	record := SessionRecord{
		Token:             token,
		AccountID:         accountID,
		ExpiresAt:         expires,
		AbsoluteExpiresAt: absolute,
	}
	if err := m.store.Save(record); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return Session{Token: token, AccountID: accountID, ExpiresAt: expires}, nil
}

// Validate resolves the token to an account ID. Valid sessions slide their
// expiry forward when an idle timeout is configured; expired tokens are
// removed from the store.
func (m *SessionManager) Validate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	record, ok, err := m.store.Get(token)
	if err != nil || !ok {
		return "", false
	}
	now := m.now()
	if now.After(record.ExpiresAt) || now.After(record.AbsoluteExpiresAt) {
		_ = m.store.Delete(token)
		return "", false
	}
	if m.idleTimeout > 0 {
		next := now.Add(m.idleTimeout)
		if next.After(record.AbsoluteExpiresAt) {
			next = record.AbsoluteExpiresAt
		}
		if next.After(record.ExpiresAt) {
			record.ExpiresAt = next
			_ = m.store.Save(record)
		}
	}
	return record.AccountID, true
}

// Revoke removes the session token.
func (m *SessionManager) Revoke(token string) {
	if token == "" {
		return
	}
	_ = m.store.Delete(token)
}

// PurgeExpired removes expired sessions from the store.
func (m *SessionManager) PurgeExpired() error {
	return m.store.PurgeExpired(m.now())
}

// Ping reports whether the backing store is reachable.
func (m *SessionManager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
