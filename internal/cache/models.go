package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current cache schema version. A stored cache carrying any
// other version is discarded on load by the reconciler.
const Version = 1

// NewsEntry is a feed item as produced by the candidate source.
type NewsEntry struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Link    string `json:"link"`
}

// CachedEntry is a persisted entry. Entries are identified by exact title.
type CachedEntry struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Link      string `json:"link"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}

// CacheFile is the persisted aggregate.
type CacheFile struct {
	Entries               []CachedEntry `json:"entries"`
	CacheVersion          int           `json:"cache_version"`
	LastSuccessfulRequest *int64        `json:"last_successful_request"`
}

// UnmarshalJSON accepts last_successful_request either as Unix seconds or as
// the {"secs_since_epoch","nanos_since_epoch"} object older caches carry.
// Marshalling always writes seconds.
func (c *CacheFile) UnmarshalJSON(data []byte) error {
	type plain CacheFile
	var raw struct {
		plain
		LastSuccessfulRequest json.RawMessage `json:"last_successful_request"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CacheFile(raw.plain)
	ts, err := parseTimestamp(raw.LastSuccessfulRequest)
	if err != nil {
		return fmt.Errorf("last_successful_request: %w", err)
	}
	c.LastSuccessfulRequest = ts
	return nil
}

type systemTime struct {
	Secs  *int64 `json:"secs_since_epoch"`
	Nanos int64  `json:"nanos_since_epoch"`
}

func parseTimestamp(data json.RawMessage) (*int64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '{' {
		var st systemTime
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, err
		}
		if st.Secs == nil {
			return nil, fmt.Errorf("missing secs_since_epoch")
		}
		return st.Secs, nil
	}
	var sec int64
	if err := json.Unmarshal(data, &sec); err != nil {
		return nil, err
	}
	return &sec, nil
}

// NewCacheFile returns an empty cache at the current schema version.
func NewCacheFile() CacheFile {
	return CacheFile{
		Entries:      []CachedEntry{},
		CacheVersion: Version,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (c CacheFile) Clone() CacheFile {
	out := CacheFile{
		Entries:      make([]CachedEntry, len(c.Entries)),
		CacheVersion: c.CacheVersion,
	}
	copy(out.Entries, c.Entries)
	if c.LastSuccessfulRequest != nil {
		ts := *c.LastSuccessfulRequest
		out.LastSuccessfulRequest = &ts
	}
	return out
}

// Unix converts t to whole seconds since the epoch.
func Unix(t time.Time) int64 {
	return t.Unix()
}

// Time converts seconds since the epoch back to a time.Time.
func Time(sec int64) time.Time {
	return time.Unix(sec, 0)
}

// DaysSince returns the fractional number of days between sec and now.
func DaysSince(sec int64, now time.Time) float64 {
	return float64(Unix(now)-sec) / 86400.0
}
