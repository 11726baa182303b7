package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// JSONStore keeps the cache as a single pretty-printed JSON document.
type JSONStore struct {
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Exists() bool { return fileExists(s.path) }

func (s *JSONStore) Load() CacheFile {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("reading cache, starting empty", "path", s.path, "error", err)
		}
		return NewCacheFile()
	}

	var cf CacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		slog.Warn("parsing cache, starting empty", "path", s.path, "error", err)
		return NewCacheFile()
	}
	if cf.Entries == nil {
		cf.Entries = []CachedEntry{}
	}
	return cf
}

// Save writes to a temporary file in the cache directory and renames it
// over the target, so a crash mid-write never leaves a truncated cache.
func (s *JSONStore) Save(cf CacheFile) error {
	if err := ensureDir(s.path); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if cf.Entries == nil {
		cf.Entries = []CachedEntry{}
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing cache %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache %s: %w", s.path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("writing cache %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing cache %s: %w", s.path, err)
	}
	return nil
}
