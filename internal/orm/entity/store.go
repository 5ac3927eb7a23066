// Package entity persists mapped structs through database/sql.
//
// A Store is shared by the whole process. Each request works through its own
// Manager, which keeps an identity map so that one row is materialized as
// exactly one model instance per request.
package entity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// PoolOptions configures the connection pool
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store owns the database handle and the entity registry
type Store struct {
	db       *sql.DB
	dialect  query.Dialect
	registry *mapping.Registry
	logger   *zap.Logger
}

// Open connects to a database with one of the supported drivers
// (pgx, postgres, sqlite3) and verifies the connection.
func Open(ctx context.Context, driver, dsn string, pool PoolOptions, registry *mapping.Registry, logger *zap.Logger) (*Store, error) {
	dialect, err := query.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewStore(db, dialect, registry, logger), nil
}

// NewStore wraps an existing handle
func NewStore(db *sql.DB, dialect query.Dialect, registry *mapping.Registry, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:       db,
		dialect:  dialect,
		registry: registry,
		logger:   logger,
	}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect of the store
func (s *Store) Dialect() query.Dialect { return s.dialect }

// Registry returns the entity registry
func (s *Store) Registry() *mapping.Registry { return s.registry }

// Ping verifies the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Manager creates a request-scoped entity manager
func (s *Store) Manager() *Manager {
	return &Manager{
		store:    s,
		identity: make(map[string]any),
	}
}

func (s *Store) logQuery(sql string, args []interface{}) {
	s.logger.Debug("sql", zap.String("query", sql), zap.Any("args", args))
}
