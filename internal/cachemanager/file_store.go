package cachemanager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/kiln/internal/log"
)

const fileSuffix = ".cache"

// FileStore persists each entry as one file under a cache directory.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the cache directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file cache requires a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	// Keys are dotted identifiers; keep them from escaping the cache dir.
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(key)
	return filepath.Join(s.dir, name+fileSuffix)
}

func (s *FileStore) Has(ctx context.Context, key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			log.ErrorErr(log.CatCache, "Failed to read cache entry", err, "key", key)
		}
		return nil, false
	}
	log.Debug(log.CatCache, "cache hit", "cache", "file", "key", key)
	return data, true
}

// Set writes atomically (temp file, then rename).
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	temp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(value); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path(key)); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func (s *FileStore) Flush(ctx context.Context) error {
	return FlushDir(s.dir)
}

func (s *FileStore) Close() error { return nil }
