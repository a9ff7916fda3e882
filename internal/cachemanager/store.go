package cachemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/kiln/internal/log"
)

// Backend names accepted by core.cache_backend.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNoop   = "noop"
)

// ErrUnknownBackend is returned for an unsupported core.cache_backend value.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store is a flat key/value store for serialized derived values. A Store is
// owned by exactly one bootstrap and is not meant for cross-process sharing.
type Store interface {
	Has(ctx context.Context, key string) bool
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	Flush(ctx context.Context) error
	Close() error
}

// SQLiteFile is the database file name inside a cache directory for the
// sqlite backend.
const SQLiteFile = "cache.db"

const tempPrefix = ".entry.tmp."

// ownedFile reports whether name is a file a kiln cache store writes: file
// store entries and their temp files, or the sqlite database with its
// journal files.
func ownedFile(name string) bool {
	return strings.HasSuffix(name, fileSuffix) ||
		strings.HasPrefix(name, tempPrefix) ||
		name == SQLiteFile || strings.HasPrefix(name, SQLiteFile+"-")
}

// FlushDir removes the cache files kiln wrote to a persisted cache directory,
// leaving the directory and anything else in it in place. A missing directory
// is not an error.
func FlushDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cache dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !ownedFile(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing cache entry %s: %w", entry.Name(), err)
		}
		removed++
	}
	log.Info(log.CatCache, "Flushed cache directory", "dir", dir, "entries", removed)
	return nil
}
