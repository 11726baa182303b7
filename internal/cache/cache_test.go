package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func sampleCache() CacheFile {
	ts := int64(1_700_000_500)
	return CacheFile{
		Entries: []CachedEntry{
			{Title: "zabbix >= 7.4.1-2 may require manual intervention", Summary: "zabbix summary", Link: "https://archlinux.org/news/zabbix/", FirstSeen: 1_700_000_000, LastSeen: 1_700_000_400},
			{Title: "Valkey to replace Redis in the [extra] Repository", Summary: "valkey summary", Link: "https://archlinux.org/news/valkey/", FirstSeen: 1_699_000_000, LastSeen: 1_700_000_400},
		},
		CacheVersion:          Version,
		LastSuccessfulRequest: &ts,
	}
}

func TestJSONStoreMissing(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "cache.json"))
	if s.Exists() {
		t.Fatal("expected no cache")
	}
	cf := s.Load()
	if !reflect.DeepEqual(cf, NewCacheFile()) {
		t.Errorf("expected empty cache, got %+v", cf)
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "deep", "cache.json")
	s := NewJSONStore(path)

	want := sampleCache()
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !s.Exists() {
		t.Fatal("expected cache to exist after save")
	}
	if got := s.Load(); !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("expected mode 0644, got %v", info.Mode().Perm())
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("expected no temp files, got %v", leftovers)
	}
}

func TestJSONStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cf := NewCacheFile()
	if err := NewJSONStore(path).Save(cf); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{`"entries": []`, `"cache_version": 1`, `"last_successful_request": null`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in:\n%s", want, data)
		}
	}
}

func TestJSONStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte(`{"entries": [`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewJSONStore(path)
	if !s.Exists() {
		t.Fatal("expected a corrupt cache to still count as existing")
	}
	if got := s.Load(); !reflect.DeepEqual(got, NewCacheFile()) {
		t.Errorf("expected empty cache for corrupt file, got %+v", got)
	}
}

func TestJSONStoreOldVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	old := `{"entries":[{"title":"old","summary":"","link":"","first_seen":1,"last_seen":2}]}`
	if err := os.WriteFile(path, []byte(old), 0o644); err != nil {
		t.Fatal(err)
	}

	cf := NewJSONStore(path).Load()
	if cf.CacheVersion != 0 {
		t.Errorf("expected a missing version to load as 0, got %d", cf.CacheVersion)
	}
	if len(cf.Entries) != 1 || cf.LastSuccessfulRequest != nil {
		t.Errorf("unexpected cache: %+v", cf)
	}
}

func TestJSONStoreSystemTimeStamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	legacy := `{"entries":[{"title":"A","summary":"s","link":"l","first_seen":1,"last_seen":2}],` +
		`"cache_version":1,"last_successful_request":{"secs_since_epoch":1700000000,"nanos_since_epoch":0}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewJSONStore(path)
	cf := s.Load()
	if len(cf.Entries) != 1 || cf.Entries[0].Title != "A" {
		t.Fatalf("expected the stored entry to survive, got %+v", cf.Entries)
	}
	if cf.LastSuccessfulRequest == nil || *cf.LastSuccessfulRequest != 1_700_000_000 {
		t.Fatalf("expected last_successful_request 1700000000, got %v", cf.LastSuccessfulRequest)
	}

	if err := s.Save(cf); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"last_successful_request": 1700000000`) {
		t.Errorf("expected seconds to be written back, got:\n%s", data)
	}
}

func TestJSONStoreBadStamp(t *testing.T) {
	for name, stamp := range map[string]string{
		"string":       `"yesterday"`,
		"missing secs": `{"nanos_since_epoch":5}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.json")
			doc := `{"entries":[],"cache_version":1,"last_successful_request":` + stamp + `}`
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if got := NewJSONStore(path).Load(); !reflect.DeepEqual(got, NewCacheFile()) {
				t.Errorf("expected empty cache, got %+v", got)
			}
		})
	}
}

func TestSQLiteStoreOddPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd?name#1 %x", "cache.db")
	s := NewSQLiteStore(path)

	want := sampleCache()
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the db at the literal path: %v", err)
	}
	if got := s.Load(); !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cache.db")
	s := NewSQLiteStore(path)

	if s.Exists() {
		t.Fatal("expected no cache")
	}
	if got := s.Load(); !reflect.DeepEqual(got, NewCacheFile()) {
		t.Errorf("expected empty cache, got %+v", got)
	}

	want := sampleCache()
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := s.Load(); !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	// A second save replaces the entry set and clears the timestamp.
	want.Entries = want.Entries[:1]
	want.LastSuccessfulRequest = nil
	if err := s.Save(want); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if got := s.Load(); !reflect.DeepEqual(got, want) {
		t.Errorf("after second save Load() = %+v, want %+v", got, want)
	}
}

func TestSQLiteStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	if err := os.WriteFile(path, []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := NewSQLiteStore(path).Load(); !reflect.DeepEqual(got, NewCacheFile()) {
		t.Errorf("expected empty cache for corrupt db, got %+v", got)
	}
}

func TestOpenPicksBackend(t *testing.T) {
	tests := []struct {
		path   string
		sqlite bool
	}{
		{"/var/cache/arch-manwarn.json", false},
		{"/var/cache/arch-manwarn", false},
		{"/var/cache/arch-manwarn.db", true},
		{"/var/cache/arch-manwarn.SQLITE", true},
		{"/var/cache/arch-manwarn.sqlite3", true},
	}
	for _, tt := range tests {
		_, isSQLite := Open(tt.path).(*SQLiteStore)
		if isSQLite != tt.sqlite {
			t.Errorf("Open(%q): sqlite = %v, want %v", tt.path, isSQLite, tt.sqlite)
		}
	}
}

func TestClone(t *testing.T) {
	orig := sampleCache()
	c := orig.Clone()
	c.Entries[0].LastSeen = 0
	*c.LastSuccessfulRequest = 0

	if orig.Entries[0].LastSeen == 0 || *orig.LastSuccessfulRequest == 0 {
		t.Error("expected clone not to alias its source")
	}
}

func TestDaysSince(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	if got := DaysSince(now.Unix()-36*60*60, now); got != 1.5 {
		t.Errorf("DaysSince() = %v, want 1.5", got)
	}
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	first, err := Lock(context.Background(), path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	second, err := Lock(ctx, path)
	if !errors.Is(err, ErrLockBusy) {
		t.Errorf("expected ErrLockBusy, got %v", err)
	}
	if err := second.Unlock(); err != nil {
		t.Errorf("expected no-op unlock, got %v", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	third, err := Lock(context.Background(), path)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	third.Unlock()
}

func TestLockCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	held, err := Lock(context.Background(), path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer held.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u, err := Lock(ctx, path)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrLockBusy) {
		t.Error("a cancelled wait must not report ErrLockBusy")
	}
	if err := u.Unlock(); err != nil {
		t.Errorf("expected no-op unlock, got %v", err)
	}
}
