package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cineshelf/internal/accounts"
	"cineshelf/internal/api"
	"cineshelf/internal/auth"
	"cineshelf/internal/observability/logging"
	"cineshelf/internal/observability/metrics"
	"cineshelf/internal/server"
	"cineshelf/internal/storage"
)

const (
	envPrefix              = "CINESHELF_"
	defaultAddr            = ":8080"
	defaultDataFile        = "data/cineshelf.json"
	defaultSessionTTL      = 24 * time.Hour
	defaultPurgeInterval   = 15 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.Init(logging.Config{Level: cfg.logLevel, Format: cfg.logFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := buildRepository(ctx, cfg)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if cfg.seedSample {
		created, err := storage.SeedCatalog(repo, storage.SampleCatalog())
		if err != nil {
			logger.Error("seed catalog failed", "error", err)
			os.Exit(1)
		}
		if created > 0 {
			logger.Info("seeded sample catalog", "movies", created)
		}
	}

	sessions, sessionCleanup, err := buildSessions(ctx, cfg)
	if err != nil {
		logger.Error("session store init failed", "error", err)
		os.Exit(1)
	}
	defer sessionCleanup()

	service := accounts.NewService(repo, repo,
		accounts.WithLogger(logging.WithComponent(logger, "accounts")))

	handler := api.NewHandler(api.HandlerConfig{
		Store:           repo,
		Accounts:        service,
		Sessions:        sessions,
		Cookies:         cfg.cookies,
		AllowSelfSignup: cfg.allowSelfSignup,
		Logger:          logging.WithComponent(logger, "api"),
		Metrics:         metrics.Default(),
	})

	srv, err := server.New(handler, server.Config{
		Addr:        cfg.addr,
		TLSCertFile: cfg.tlsCert,
		TLSKeyFile:  cfg.tlsKey,
		Logger:      logging.WithComponent(logger, "http"),
		AuditLogger: logging.WithComponent(logger, "audit"),
		Metrics:     metrics.Default(),
		RateLimit:   cfg.rateLimit,
		CORS:        server.CORSConfig{AllowedOrigins: cfg.corsOrigins},
	})
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}

	stopPurge := startSessionPurgeWorker(ctx, sessions, cfg.purgeInterval,
		logging.WithComponent(logger, "sessions"), time.NewTicker)
	defer stopPurge()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}

type config struct {
	addr      string
	logLevel  string
	logFormat string

	storageDriver string
	dataFile      string
	postgresDSN   string
	postgresOpts  []storage.Option
	seedSample    bool

	sessionStore       string
	sessionPostgresDSN string
	sessionTTL         time.Duration
	sessionIdleTimeout time.Duration
	purgeInterval      time.Duration

	allowSelfSignup bool
	cookies         api.SessionCookiePolicy
	tlsCert         string
	tlsKey          string
	rateLimit       server.RateLimitConfig
	corsOrigins     []string
}

func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("cineshelf", flag.ContinueOnError)

	addr := fs.String("addr", envString("ADDR", defaultAddr), "listen address")
	logLevel := fs.String("log-level", envString("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", envString("LOG_FORMAT", "json"), "log format (json or text)")

	storageDriver := fs.String("storage-driver", envString("STORAGE_DRIVER", "json"), "storage backend (json or postgres)")
	dataFile := fs.String("data", envString("DATA_FILE", defaultDataFile), "path to the JSON dataset")
	postgresDSN := fs.String("postgres-dsn", envString("POSTGRES_DSN", ""), "postgres connection string")
	postgresMaxConns := fs.Int("postgres-max-conns", envInt("POSTGRES_MAX_CONNS", 0), "max pooled postgres connections")
	postgresMinConns := fs.Int("postgres-min-conns", envInt("POSTGRES_MIN_CONNS", 0), "min pooled postgres connections")
	postgresConnLifetime := fs.Duration("postgres-conn-lifetime", envDuration("POSTGRES_CONN_LIFETIME", 0), "max postgres connection lifetime")
	postgresConnIdle := fs.Duration("postgres-conn-idle", envDuration("POSTGRES_CONN_IDLE", 0), "max postgres connection idle time")
	postgresHealth := fs.Duration("postgres-health-interval", envDuration("POSTGRES_HEALTH_INTERVAL", 0), "postgres pool health check interval")
	postgresAcquire := fs.Duration("postgres-acquire-timeout", envDuration("POSTGRES_ACQUIRE_TIMEOUT", 0), "per-operation postgres timeout")
	skipMigrations := fs.Bool("postgres-skip-migrations", envBool("POSTGRES_SKIP_MIGRATIONS", false), "skip schema migrations on startup")
	seedSample := fs.Bool("seed-sample", envBool("SEED_SAMPLE", false), "seed the built-in sample catalog on startup")

	sessionStore := fs.String("session-store", envString("SESSION_STORE", "memory"), "session store backend (memory or postgres)")
	sessionPostgresDSN := fs.String("session-postgres-dsn", envString("SESSION_POSTGRES_DSN", ""), "postgres connection string for sessions (defaults to -postgres-dsn)")
	sessionTTL := fs.Duration("session-ttl", envDuration("SESSION_TTL", defaultSessionTTL), "absolute session lifetime")
	sessionIdle := fs.Duration("session-idle-timeout", envDuration("SESSION_IDLE_TIMEOUT", 0), "session idle timeout (0 disables)")
	purgeInterval := fs.Duration("session-purge-interval", envDuration("SESSION_PURGE_INTERVAL", defaultPurgeInterval), "expired session purge cadence")

	allowSelfSignup := fs.Bool("allow-self-signup", envBool("ALLOW_SELF_SIGNUP", true), "allow unauthenticated account registration")
	cookieSecure := fs.String("cookie-secure", envString("COOKIE_SECURE", "auto"), "session cookie Secure attribute (auto, always, never)")
	cookieDomain := fs.String("cookie-domain", envString("COOKIE_DOMAIN", ""), "session cookie domain")
	tlsCert := fs.String("tls-cert", envString("TLS_CERT", ""), "TLS certificate file")
	tlsKey := fs.String("tls-key", envString("TLS_KEY", ""), "TLS key file")

	rateRPS := fs.Float64("rate-limit-rps", envFloat("RATE_LIMIT_RPS", 0), "global requests per second (0 disables)")
	rateBurst := fs.Int("rate-limit-burst", envInt("RATE_LIMIT_BURST", 0), "global request burst")
	loginLimit := fs.Int("login-rate-limit", envInt("LOGIN_RATE_LIMIT", 10), "login attempts per IP per window (0 disables)")
	loginWindow := fs.Duration("login-rate-window", envDuration("LOGIN_RATE_WINDOW", time.Minute), "login throttle window")

	redisAddrs := fs.String("redis-addr", envString("REDIS_ADDR", ""), "redis address list for the shared login throttle (comma separated)")
	redisUsername := fs.String("redis-username", envString("REDIS_USERNAME", ""), "redis username")
	redisPassword := fs.String("redis-password", envString("REDIS_PASSWORD", ""), "redis password")
	redisMaster := fs.String("redis-master", envString("REDIS_MASTER", ""), "redis sentinel master name")
	redisDB := fs.Int("redis-db", envInt("REDIS_DB", 0), "redis database index")
	redisPoolSize := fs.Int("redis-pool-size", envInt("REDIS_POOL_SIZE", 0), "redis connection pool size")
	redisTimeout := fs.Duration("redis-timeout", envDuration("REDIS_TIMEOUT", 0), "redis operation timeout")
	redisTLS := fs.Bool("redis-tls", envBool("REDIS_TLS", false), "enable TLS for redis")
	redisTLSCA := fs.String("redis-tls-ca", envString("REDIS_TLS_CA", ""), "redis TLS CA file")
	redisTLSCert := fs.String("redis-tls-cert", envString("REDIS_TLS_CERT", ""), "redis TLS client certificate")
	redisTLSKey := fs.String("redis-tls-key", envString("REDIS_TLS_KEY", ""), "redis TLS client key")
	redisTLSServerName := fs.String("redis-tls-server-name", envString("REDIS_TLS_SERVER_NAME", ""), "redis TLS server name override")
	redisTLSInsecure := fs.Bool("redis-tls-insecure", envBool("REDIS_TLS_INSECURE", false), "skip redis TLS certificate verification")

	corsOrigins := fs.String("cors-origins", envString("CORS_ORIGINS", ""), "allowed CORS origins (comma separated)")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	driver := strings.ToLower(*storageDriver)
	if driver != "json" && driver != "postgres" {
		return config{}, fmt.Errorf("unknown storage driver %q", driver)
	}
	if driver == "postgres" && *postgresDSN == "" {
		return config{}, fmt.Errorf("-postgres-dsn is required with the postgres storage driver")
	}
	sessionDriver := strings.ToLower(*sessionStore)
	if sessionDriver != "memory" && sessionDriver != "postgres" {
		return config{}, fmt.Errorf("unknown session store %q", sessionDriver)
	}
	sessionDSN := firstNonEmpty(*sessionPostgresDSN, *postgresDSN)
	if sessionDriver == "postgres" && sessionDSN == "" {
		return config{}, fmt.Errorf("-session-postgres-dsn is required with the postgres session store")
	}

	var postgresOpts []storage.Option
	if *postgresMaxConns > 0 || *postgresMinConns > 0 {
		postgresOpts = append(postgresOpts, storage.WithPostgresPoolLimits(int32(*postgresMaxConns), int32(*postgresMinConns)))
	}
	if *postgresConnLifetime > 0 || *postgresConnIdle > 0 || *postgresHealth > 0 {
		postgresOpts = append(postgresOpts, storage.WithPostgresPoolDurations(*postgresConnLifetime, *postgresConnIdle, *postgresHealth))
	}
	if *postgresAcquire > 0 {
		postgresOpts = append(postgresOpts, storage.WithPostgresAcquireTimeout(*postgresAcquire))
	}
	postgresOpts = append(postgresOpts, storage.WithPostgresApplicationName("cineshelf"))
	if *skipMigrations {
		postgresOpts = append(postgresOpts, storage.WithoutPostgresMigrations())
	}

	cfg := config{
		addr:               *addr,
		logLevel:           *logLevel,
		logFormat:          *logFormat,
		storageDriver:      driver,
		dataFile:           *dataFile,
		postgresDSN:        *postgresDSN,
		postgresOpts:       postgresOpts,
		seedSample:         *seedSample,
		sessionStore:       sessionDriver,
		sessionPostgresDSN: sessionDSN,
		sessionTTL:         *sessionTTL,
		sessionIdleTimeout: *sessionIdle,
		purgeInterval:      *purgeInterval,
		allowSelfSignup:    *allowSelfSignup,
		cookies: api.SessionCookiePolicy{
			Secure: *cookieSecure,
			Domain: *cookieDomain,
		},
		tlsCert: *tlsCert,
		tlsKey:  *tlsKey,
		rateLimit: server.RateLimitConfig{
			RequestsPerSecond: *rateRPS,
			Burst:             *rateBurst,
			LoginLimit:        *loginLimit,
			LoginWindow:       *loginWindow,
			Redis: server.RedisConfig{
				Addrs:      splitList(*redisAddrs),
				Username:   *redisUsername,
				Password:   *redisPassword,
				MasterName: *redisMaster,
				DB:         *redisDB,
				PoolSize:   *redisPoolSize,
				OpTimeout:  *redisTimeout,
				TLS: server.RedisTLSConfig{
					Enabled:            *redisTLS,
					CAFile:             *redisTLSCA,
					CertFile:           *redisTLSCert,
					KeyFile:            *redisTLSKey,
					ServerName:         *redisTLSServerName,
					InsecureSkipVerify: *redisTLSInsecure,
				},
			},
		},
		corsOrigins: splitList(*corsOrigins),
	}
	return cfg, nil
}

func buildRepository(ctx context.Context, cfg config) (storage.Repository, func(), error) {
	if cfg.storageDriver == "postgres" {
		repo, err := storage.NewPostgresRepository(ctx, cfg.postgresDSN, cfg.postgresOpts...)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}
	repo, err := storage.NewStorage(cfg.dataFile)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() {}, nil
}

func buildSessions(ctx context.Context, cfg config) (*auth.SessionManager, func(), error) {
	opts := []auth.SessionOption{
		auth.WithTTL(cfg.sessionTTL),
		auth.WithIdleTimeout(cfg.sessionIdleTimeout),
	}
	cleanup := func() {}
	if cfg.sessionStore == "postgres" {
		store, err := auth.NewPostgresSessionStore(ctx, cfg.sessionPostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, auth.WithStore(store))
		cleanup = store.Close
	}
	return auth.NewSessionManager(opts...), cleanup, nil
}

func envString(name, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + name); ok && value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	if value, ok := os.LookupEnv(envPrefix + name); ok && value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if value, ok := os.LookupEnv(envPrefix + name); ok && value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if value, ok := os.LookupEnv(envPrefix + name); ok && value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(envPrefix + name); ok && value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
