package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisOpTimeout = 2 * time.Second

// RedisConfig describes the shared throttle store. Supplying a MasterName
// switches the client into Sentinel mode; multiple addresses without one use
// cluster mode.
type RedisConfig struct {
	Addrs      []string
	Username   string
	Password   string
	MasterName string
	DB         int
	PoolSize   int
	OpTimeout  time.Duration
	TLS        RedisTLSConfig
}

// RedisTLSConfig enables TLS for the Redis connection.
type RedisTLSConfig struct {
	Enabled            bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

func (cfg RedisTLSConfig) build() (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read redis ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("redis ca file %s contains no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// redisThrottleStore counts login attempts in Redis so the limit holds
// across replicas. Each key is INCRed and given the window as its TTL on
// first touch.
type redisThrottleStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func newRedisThrottleStore(cfg RedisConfig) (*redisThrottleStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	tlsConfig, err := cfg.TLS.build()
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      cfg.Addrs,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MasterName: cfg.MasterName,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		TLSConfig:  tlsConfig,
	})
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = defaultRedisOpTimeout
	}
	store := &redisThrottleStore{client: client, timeout: timeout}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis throttle store: %w", err)
	}
	return store, nil
}

func (s *redisThrottleStore) Allow(key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis throttle incr: %w", err)
	}
	if incr.Val() <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return false, ttl, nil
}

func (s *redisThrottleStore) Close() error {
	return s.client.Close()
}

var _ throttleStore = (*redisThrottleStore)(nil)
