// Package storage is the tenant-scoped Storage Adapter (§2 component 2):
// CRUD for contacts, jobs, consents, departments, workers, routing rules,
// and the audit log, over Postgres via pgx/v5. Connection bring-up,
// retry-with-backoff, and the IPv4-preferring dial behavior are carried
// over from the teacher's order-service/internal/db/database.go.
package storage

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Postgres is the concrete Storage Adapter backed by a pgxpool.
type Postgres struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// Config mirrors the teacher's discrete-env-var-or-DSN connection config.
type Config struct {
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		DSN:      os.Getenv("DATABASE_URL"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "dispatch"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "dispatch"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
		MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (c Config) connString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// New opens the pool once, no retry. Prefer NewWithRetry for process
// start-up, where transient DNS/connection failures during rolling
// deploys should not be fatal on the first attempt.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("storage: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	// Prefer IPv4 resolution: some container networks advertise an IPv6
	// address that is not actually routable to the database host.
	poolCfg.ConnConfig.DialFunc = ipv4PreferringDialer

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return &Postgres{Pool: pool, log: log}, nil
}

// NewWithRetry retries pool creation with exponential backoff
// (1s,2s,4s,8s,16s), matching order-service's NewDatabaseWithRetry.
func NewWithRetry(ctx context.Context, cfg Config, log *zap.Logger, maxRetries int, initialDelay time.Duration) (*Postgres, error) {
	delay := initialDelay
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pg, err := New(ctx, cfg, log)
		if err == nil {
			return pg, nil
		}
		lastErr = err
		log.Warn("storage: connection attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("storage: exhausted %d retries: %w", maxRetries, lastErr)
}

func ipv4PreferringDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return (&net.Dialer{Timeout: 10 * time.Second}).DialContext(ctx, network, addr)
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if err != nil || len(ips) == 0 {
		return dialer.DialContext(ctx, network, addr)
	}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}

func (p *Postgres) Close() {
	p.Pool.Close()
}

// Ping verifies connectivity for health endpoints.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
