package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/kiln/internal/cachemanager"
	"github.com/zjrosen/kiln/internal/log"
)

// CacheStore keeps derived-state entries in a single SQLite table.
type CacheStore struct {
	db *DB
}

var _ cachemanager.Store = (*CacheStore)(nil)

// NewCacheStore opens the database at path and returns a store over it.
func NewCacheStore(path string) (*CacheStore, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return &CacheStore{db: db}, nil
}

func (s *CacheStore) Has(ctx context.Context, key string) bool {
	var one int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM cache_entries WHERE key = ?`, key,
	).Scan(&one)
	return err == nil
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.ErrorErr(log.CatDB, "Failed to read cache entry", err, "key", key)
		}
		return nil, false
	}
	return value, true
}

func (s *CacheStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// Flush deletes every entry in one statement.
func (s *CacheStore) Flush(ctx context.Context) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	log.Debug(log.CatDB, "Flushed cache", "path", s.db.path)
	return nil
}

// Len returns the number of stored entries.
func (s *CacheStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

func (s *CacheStore) Close() error {
	return s.db.Close()
}
