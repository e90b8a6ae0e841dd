// Package database owns the PostgreSQL connection lifecycle and schema.
package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
)

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Conn opens the pool at most once. Every component shares the same *sql.DB.
type Conn struct {
	dsn    string
	pool   PoolConfig
	logger *zap.SugaredLogger

	once sync.Once
	db   *sql.DB
	err  error
}

func NewConn(dsn string, pool PoolConfig, logger *zap.SugaredLogger) *Conn {
	return &Conn{dsn: dsn, pool: pool, logger: logger}
}

// Open connects and pings the database on first use. Later calls return the
// outcome of the first one.
func (c *Conn) Open(ctx context.Context) (*sql.DB, error) {
	c.once.Do(func() {
		c.db, c.err = c.open(ctx)
	})
	return c.db, c.err
}

func (c *Conn) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(c.pool.MaxOpenConns)
	db.SetMaxIdleConns(c.pool.MaxIdleConns)
	db.SetConnMaxLifetime(c.pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Mark(errors.Wrap(err, "ping database"), domain.ErrStoreUnavailable)
	}

	c.logger.Infow("database: connected",
		"max_open", c.pool.MaxOpenConns,
		"max_idle", c.pool.MaxIdleConns,
	)
	return db, nil
}

// Close closes the pool if it was opened.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}
	c.logger.Info("database: closing connection pool")
	return c.db.Close()
}
