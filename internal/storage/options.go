package storage

import "time"

// Option configures either the JSON-file store or the Postgres repository.
// Options that do not apply to the chosen backend are ignored.
type Option interface {
	applyJSON(*jsonConfig)
	applyPostgres(*PostgresConfig)
}

type optionAdapter struct {
	json     func(*jsonConfig)
	postgres func(*PostgresConfig)
}

func (o optionAdapter) applyJSON(cfg *jsonConfig) {
	if o.json != nil {
		o.json(cfg)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.postgres != nil {
		o.postgres(cfg)
	}
}

type jsonConfig struct {
	Clock func() time.Time
}

func newJSONConfig(opts ...Option) jsonConfig {
	cfg := jsonConfig{Clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(&cfg)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return cfg
}

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return optionAdapter{
		json:     func(cfg *jsonConfig) { cfg.Clock = clock },
		postgres: func(cfg *PostgresConfig) { cfg.Clock = clock },
	}
}

// WithPostgresPoolLimits bounds the connection pool size.
func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return optionAdapter{postgres: func(cfg *PostgresConfig) {
		cfg.MaxConnections = maxConns
		cfg.MinConnections = minConns
	}}
}

// WithPostgresPoolDurations tunes connection lifetime, idle time, and health
// check cadence.
func WithPostgresPoolDurations(maxLifetime, maxIdle, healthCheck time.Duration) Option {
	return optionAdapter{postgres: func(cfg *PostgresConfig) {
		cfg.MaxConnLifetime = maxLifetime
		cfg.MaxConnIdleTime = maxIdle
		cfg.HealthCheckInterval = healthCheck
	}}
}

// WithPostgresAcquireTimeout bounds how long a query waits for a pooled
// connection.
func WithPostgresAcquireTimeout(timeout time.Duration) Option {
	return optionAdapter{postgres: func(cfg *PostgresConfig) {
		cfg.AcquireTimeout = timeout
	}}
}

// WithPostgresApplicationName sets the application_name reported to the
// server.
func WithPostgresApplicationName(name string) Option {
	return optionAdapter{postgres: func(cfg *PostgresConfig) {
		cfg.ApplicationName = name
	}}
}

// WithoutPostgresMigrations skips automatic schema migration on startup.
func WithoutPostgresMigrations() Option {
	return optionAdapter{postgres: func(cfg *PostgresConfig) {
		cfg.SkipMigrations = true
	}}
}
