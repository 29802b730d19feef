package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	PingAttempts     uint
}

// DB is a database/sql handle plus the pgx pool behind it, when there is one.
type DB struct {
	*sql.DB
	Dialect Dialect
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// DialectFor picks the driver from the DSN scheme. Anything that is not a
// postgres URL is treated as a SQLite path.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the ledger database and pings it until it answers.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: dsn is empty", common.ErrDatabase)
	}

	dialect := DialectFor(cfg.DSN)
	logger.Info("db.open", "dialect", dialect)

	var db *DB
	switch dialect {
	case DialectPostgres:
		pool, err := openPool(ctx, cfg)
		if err != nil {
			logger.Error("db.open.failed", "dialect", dialect, "error", err)
			return nil, common.WrapError(err, "open postgres pool")
		}
		db = &DB{DB: stdlib.OpenDBFromPool(pool), Dialect: dialect, pool: pool, logger: logger}
	default:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			logger.Error("db.open.failed", "dialect", dialect, "error", err)
			return nil, common.WrapError(err, "open sqlite")
		}
		// one writer; also keeps ":memory:" on a single database
		sqldb.SetMaxOpenConns(1)
		db = &DB{DB: sqldb, Dialect: dialect, logger: logger}
	}

	if err := db.waitReady(ctx, cfg); err != nil {
		db.Close()
		return nil, common.WrapError(err, "database not ready")
	}
	logger.Info("db.open.ok", "dialect", dialect)
	return db, nil
}

func openPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "doc-extractor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	return pgxpool.NewWithConfig(ctx, pc)
}

func (db *DB) waitReady(ctx context.Context, cfg Config) error {
	attempts := cfg.PingAttempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		func() error { return db.HealthCheck(ctx, cfg.DialTimeout) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			db.logger.Warn("db.ping.retry", "attempt", n+1, "error", err)
		}),
	)
}

// HealthCheck pings the database within timeout.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}

// Close closes the sql handle and the pool behind it.
func (db *DB) Close() {
	if db == nil {
		return
	}
	if err := db.DB.Close(); err != nil {
		db.logger.Error("db.close.failed", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	db.logger.Info("db.closed")
}

// rebind rewrites ? placeholders to $n for postgres.
func (db *DB) rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
