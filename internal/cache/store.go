package cache

import (
	"os"
	"path/filepath"
	"strings"
)

// Store loads and persists a CacheFile at a fixed path. Implementations own
// serialization only; they carry no business logic.
type Store interface {
	// Load never fails. A missing, unreadable or corrupt cache yields
	// NewCacheFile().
	Load() CacheFile
	// Save writes the cache, creating parent directories as needed.
	Save(CacheFile) error
	// Exists reports whether a cache is present on disk.
	Exists() bool
	Path() string
}

// Open returns the store backend matching the path's extension: SQLite for
// .db/.sqlite/.sqlite3, JSON otherwise.
func Open(path string) Store {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStore(path)
	default:
		return NewJSONStore(path)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
