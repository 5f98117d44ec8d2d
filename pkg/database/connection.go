// Package database opens the gorm handle used to persist projection runs. Postgres is
// the production store; sqlite backs local runs and tests.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DB struct {
	*gorm.DB
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

var (
	postgresPool = PoolConfig{MaxIdleConns: 5, MaxOpenConns: 20, ConnMaxLifetime: time.Hour}
	// sqlite allows one writer, and every ":memory:" connection is its own database.
	sqlitePool = PoolConfig{MaxIdleConns: 1, MaxOpenConns: 1}
)

// NewConnection opens databaseURL with the pool defaults for its driver. SQL logging
// goes through the standard logrus logger at warn level in development and error
// level otherwise.
func NewConnection(databaseURL string, isDevelopment bool) (*DB, error) {
	dial := dialector(databaseURL)
	pool := postgresPool
	if dial.Name() == "sqlite" {
		pool = sqlitePool
	}
	return Open(dial, pool, newGormLogger(logrus.StandardLogger(), isDevelopment))
}

// Open connects through dial and pings before returning.
func Open(dial gorm.Dialector, pool PoolConfig, log gormlogger.Interface) (*DB, error) {
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: log,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dial.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dial.Name(), err)
	}

	logrus.WithFields(logrus.Fields{
		"driver":         dial.Name(),
		"max_open_conns": pool.MaxOpenConns,
	}).Info("Run store connected")

	return &DB{db}, nil
}

// dialector picks sqlite for "sqlite://" or "file:" URLs and postgres otherwise.
func dialector(databaseURL string) gorm.Dialector {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"), databaseURL == ":memory:":
		return sqlite.Open(databaseURL)
	default:
		return postgres.Open(databaseURL)
	}
}

func newGormLogger(log *logrus.Logger, isDevelopment bool) gormlogger.Interface {
	level := gormlogger.Error
	if isDevelopment {
		level = gormlogger.Warn
	}
	return gormlogger.New(log, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the pool; it backs the /ready probe.
func (db *DB) HealthCheck(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("run store ping failed: %w", err)
	}
	return nil
}
