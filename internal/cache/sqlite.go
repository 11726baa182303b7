package cache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	_ "modernc.org/sqlite"
)

const (
	metaCacheVersion    = "cache_version"
	metaLastSuccessful  = "last_successful_request"
	sqliteBusyTimeoutMS = 5000
)

// SQLiteStore keeps the cache in a SQLite database: one row per entry plus a
// key/value meta table for the version and the last successful request.
type SQLiteStore struct {
	path string
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Exists() bool { return fileExists(s.path) }

func (s *SQLiteStore) open(mode string) (*sql.DB, error) {
	// The path is percent-encoded so '?' and '#' in it survive URI parsing.
	path := (&url.URL{Path: s.path}).EscapedPath()
	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(%d)", path, mode, sqliteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			title      TEXT PRIMARY KEY,
			summary    TEXT NOT NULL DEFAULT '',
			link       TEXT NOT NULL DEFAULT '',
			first_seen INTEGER NOT NULL,
			last_seen  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_last_seen ON entries(last_seen);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load() CacheFile {
	if !s.Exists() {
		return NewCacheFile()
	}
	cf, err := s.load()
	if err != nil {
		slog.Warn("reading cache db, starting empty", "path", s.path, "error", err)
		return NewCacheFile()
	}
	return cf
}

func (s *SQLiteStore) load() (CacheFile, error) {
	db, err := s.open("ro")
	if err != nil {
		return CacheFile{}, err
	}
	defer db.Close()

	cf := CacheFile{Entries: []CachedEntry{}}

	meta, err := readMeta(db)
	if err != nil {
		return CacheFile{}, err
	}
	if v, ok := meta[metaCacheVersion]; ok {
		version, err := strconv.Atoi(v)
		if err != nil {
			return CacheFile{}, fmt.Errorf("parsing %s: %w", metaCacheVersion, err)
		}
		cf.CacheVersion = version
	}
	if v, ok := meta[metaLastSuccessful]; ok {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return CacheFile{}, fmt.Errorf("parsing %s: %w", metaLastSuccessful, err)
		}
		cf.LastSuccessfulRequest = &ts
	}

	rows, err := db.Query("SELECT title, summary, link, first_seen, last_seen FROM entries ORDER BY rowid")
	if err != nil {
		return CacheFile{}, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e CachedEntry
		if err := rows.Scan(&e.Title, &e.Summary, &e.Link, &e.FirstSeen, &e.LastSeen); err != nil {
			return CacheFile{}, fmt.Errorf("scanning entry: %w", err)
		}
		cf.Entries = append(cf.Entries, e)
	}
	return cf, rows.Err()
}

func readMeta(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("querying meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save replaces the stored entry set and meta values in one transaction.
func (s *SQLiteStore) Save(cf CacheFile) error {
	if err := ensureDir(s.path); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := s.open("rwc")
	if err != nil {
		return err
	}
	defer db.Close()

	if err := initSchema(db); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO entries (title, summary, link, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			summary = excluded.summary,
			link = excluded.link,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range cf.Entries {
		if _, err := stmt.Exec(e.Title, e.Summary, e.Link, e.FirstSeen, e.LastSeen); err != nil {
			return fmt.Errorf("inserting entry %q: %w", e.Title, err)
		}
	}

	if err := setMeta(tx, metaCacheVersion, strconv.Itoa(cf.CacheVersion)); err != nil {
		return err
	}
	if cf.LastSuccessfulRequest != nil {
		if err := setMeta(tx, metaLastSuccessful, strconv.FormatInt(*cf.LastSuccessfulRequest, 10)); err != nil {
			return err
		}
	} else if _, err := tx.Exec("DELETE FROM meta WHERE key = ?", metaLastSuccessful); err != nil {
		return fmt.Errorf("clearing %s: %w", metaLastSuccessful, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache: %w", err)
	}
	return nil
}

func setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}
