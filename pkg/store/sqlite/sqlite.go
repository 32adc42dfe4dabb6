// Package sqlite provides a store.Cache backed by a local SQLite database.
// It plays the role of the platform's default key/value store: one database
// file holds every cache identifier, each in its own partition.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    cache_id TEXT NOT NULL,
    key      TEXT NOT NULL,
    value    BLOB NOT NULL,
    PRIMARY KEY (cache_id, key)
);
`

// DB is an open key/value database.
type DB struct {
	sqlDB  *sql.DB
	logger *slog.Logger
	caches *store.Registry[*Cache]
}

// Open opens (creating if needed) the database at path.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &DB{
		sqlDB:  sqlDB,
		logger: store.Logger(logger).With("cache", "sqlite"),
		caches: store.NewRegistry[*Cache](),
	}, nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// Factory returns a store.Factory handing out one Cache per identifier.
func (d *DB) Factory() store.Factory {
	return func(logger *slog.Logger, cacheID string) store.Cache {
		return d.Cache(logger, cacheID)
	}
}

// Cache returns the partition for cacheID.
func (d *DB) Cache(logger *slog.Logger, cacheID string) *Cache {
	return d.caches.Get(cacheID, func() *Cache {
		l := d.logger
		if logger != nil {
			l = logger.With("cache", "sqlite")
		}
		return &Cache{db: d.sqlDB, cacheID: cacheID, logger: l}
	})
}

// Cache is one cache identifier's partition of a DB.
// Locking is left to SQLite.
type Cache struct {
	db      *sql.DB
	cacheID string
	logger  *slog.Logger
}

var _ store.Cache = (*Cache)(nil)

func (c *Cache) Set(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}
	_, err := c.db.ExecContext(context.Background(),
		`INSERT INTO kv (cache_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(cache_id, key) DO UPDATE SET value = excluded.value`,
		c.cacheID, key, value)
	if err != nil {
		c.logger.Warn("sqlite set failed", "error", err, "key", key)
	}
}

func (c *Cache) Get(key string) ([]byte, bool) {
	var value []byte
	err := c.db.QueryRowContext(context.Background(),
		`SELECT value FROM kv WHERE cache_id = ? AND key = ?`, c.cacheID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("sqlite get failed", "error", err, "key", key)
		return nil, false
	}
	if value == nil {
		value = []byte{}
	}
	return value, true
}

func (c *Cache) Delete(key string) {
	_, err := c.db.ExecContext(context.Background(),
		`DELETE FROM kv WHERE cache_id = ? AND key = ?`, c.cacheID, key)
	if err != nil {
		c.logger.Warn("sqlite delete failed", "error", err, "key", key)
	}
}

func (c *Cache) Clear() {
	_, err := c.db.ExecContext(context.Background(), `DELETE FROM kv WHERE cache_id = ?`, c.cacheID)
	if err != nil {
		c.logger.Warn("sqlite clear failed", "error", err)
	}
}

func (c *Cache) Keys() []string {
	keys, err := c.keys()
	if err != nil {
		c.logger.Warn("sqlite keys failed", "error", err)
		return nil
	}
	return keys
}

func (c *Cache) keys() ([]string, error) {
	rows, err := c.db.QueryContext(context.Background(), `SELECT key FROM kv WHERE cache_id = ?`, c.cacheID)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}
