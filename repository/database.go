package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type OpenOptions struct {
	Driver       string
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

// Database bundles the GORM handle with the pgx pool backing it (postgres only)
type Database struct {
	DB   *gorm.DB
	Pool *pgxpool.Pool
}

// Open connects to the configured database. Postgres connections go through a
// pgx pool so the pool can be pinged directly by health checks.
func Open(ctx context.Context, opts OpenOptions) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(parseLogLevel(opts.LogLevel)),
		TranslateError: true,
	}

	switch strings.ToLower(opts.Driver) {
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(opts.URL), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		// in-memory databases live and die with their connection
		sqlDB.SetMaxOpenConns(1)
		slog.Info("Connected to sqlite database", "url", opts.URL)
		return &Database{DB: db}, nil

	case DriverPostgres, "":
		pool, err := pgxpool.New(ctx, opts.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		sqlDB := stdlib.OpenDBFromPool(pool)
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)

		db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to open gorm on pgx pool: %w", err)
		}
		slog.Info("Connected to postgres database")
		return &Database{DB: db, Pool: pool}, nil
	}

	return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
}

// Ping checks the underlying connection
func (d *Database) Ping(ctx context.Context) error {
	if d.Pool != nil {
		return d.Pool.Ping(ctx)
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() {
	if sqlDB, err := d.DB.DB(); err == nil {
		sqlDB.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Silent
	}
}
