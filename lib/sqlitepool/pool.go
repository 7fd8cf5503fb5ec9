// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize suits a single CLI process: one writer plus one
// reader.
const DefaultPoolSize = 2

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file, created if missing. The parent
	// directory must exist. ":memory:" works with PoolSize 1.
	Path string

	// PoolSize defaults to DefaultPoolSize.
	PoolSize int

	// Migrations are applied in order by Open; see the package
	// documentation.
	Migrations []string

	Logger *slog.Logger
}

// Pool is a fixed-size pool of prepared connections.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool and migrates the schema.
func Open(ctx context.Context, config Config) (*Pool, error) {
	if config.Path == "" {
		return nil, errors.New("sqlitepool: path is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.PoolSize <= 0 {
		config.PoolSize = DefaultPoolSize
	}

	inner, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize:    config.PoolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", config.Path, err)
	}
	pool := &Pool{inner: inner, logger: config.Logger, path: config.Path}

	if err := pool.With(ctx, func(conn *sqlite.Conn) error {
		return migrate(conn, config.Migrations, config.Logger)
	}); err != nil {
		inner.Close()
		return nil, err
	}

	config.Logger.Debug("sqlite pool opened",
		"path", config.Path,
		"pool_size", config.PoolSize,
		"schema_version", len(config.Migrations),
	)
	return pool, nil
}

// Take borrows a connection, blocking until one is free or ctx ends.
// Every Take must be paired with Put.
func (pool *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := pool.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. Put(nil) is a no-op.
func (pool *Pool) Put(conn *sqlite.Conn) {
	if conn != nil {
		pool.inner.Put(conn)
	}
}

// With runs fn on a borrowed connection.
func (pool *Pool) With(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := pool.Take(ctx)
	if err != nil {
		return err
	}
	defer pool.Put(conn)
	return fn(conn)
}

// Close closes every connection, waiting for borrowed ones.
func (pool *Pool) Close() error {
	if err := pool.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", pool.path, err)
	}
	pool.logger.Debug("sqlite pool closed", "path", pool.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	return nil
}

// SchemaVersion reads PRAGMA user_version.
func SchemaVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}

func migrate(conn *sqlite.Conn, migrations []string, logger *slog.Logger) error {
	current, err := SchemaVersion(conn)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("sqlitepool: database schema version %d is newer than this binary (%d)", current, len(migrations))
	}
	for version := current; version < len(migrations); version++ {
		if err := applyMigration(conn, version+1, migrations[version]); err != nil {
			return err
		}
		logger.Info("database migrated", "schema_version", version+1)
	}
	return nil
}

func applyMigration(conn *sqlite.Conn, version int, script string) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: migration %d: begin: %w", version, err)
	}
	defer endTransaction(&err)

	if err := sqlitex.ExecuteScript(conn, script, nil); err != nil {
		return fmt.Errorf("sqlitepool: migration %d: %w", version, err)
	}
	// PRAGMA does not take bound parameters.
	if err := sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version=%d", version), nil); err != nil {
		return fmt.Errorf("sqlitepool: migration %d: setting user_version: %w", version, err)
	}
	return nil
}
