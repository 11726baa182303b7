// Package reconcile decides which candidate news entries are new since the
// previous run and computes the next persisted cache state.
//
// Reconcile is a pure function over values: it performs no I/O, keeps no
// state between calls and never fails. Loading and saving the cache is the
// caller's job; the caller persists Result.Cache only when Result.Changed.
package reconcile

import (
	"time"

	"github.com/NLion74/arch-manwarn/internal/cache"
)

const day = 24 * time.Hour

// Request carries everything one reconciliation needs.
type Request struct {
	// Candidates are the fetched entries that passed keyword matching.
	Candidates []cache.NewsEntry
	// FetchSucceeded is true when the fetch produced at least one entry.
	FetchSucceeded bool
	Now            time.Time

	// ForceMarkSeen persists new entries regardless of AutoMarkSeen.
	ForceMarkSeen bool
	AutoMarkSeen  bool

	PruneMissingAfter time.Duration
	PruneAgeAfter     time.Duration

	Existing cache.CacheFile
	// WasFirstRun is true when no cache existed before this call.
	WasFirstRun bool
}

// Connection describes the state of the feed connection after step one.
type Connection struct {
	Succeeded   bool
	Never       bool
	LastSuccess time.Time
	// Stale is set when the last success is more than a day old.
	Stale bool
}

// DaysSinceSuccess returns the fractional days since the last success, or 0
// when there never was one.
func (c Connection) DaysSinceSuccess(now time.Time) float64 {
	if c.Never {
		return 0
	}
	return now.Sub(c.LastSuccess).Hours() / 24
}

// Result is the outcome of one reconciliation. Cache is the next persisted
// state; it is independent of Request.Existing.
type Result struct {
	// NewEntries are reported to the user. Always empty on a first run.
	NewEntries []cache.CachedEntry
	Cache      cache.CacheFile
	Changed    bool
	FirstRun   bool
	// Pruned counts entries removed by retention.
	Pruned     int
	Connection Connection
}

// Reconcile classifies req.Candidates against req.Existing.
func Reconcile(req Request) Result {
	now := cache.Unix(req.Now)
	res := Result{FirstRun: req.WasFirstRun}

	cf := req.Existing.Clone()
	if cf.CacheVersion != cache.Version {
		cf = cache.NewCacheFile()
		res.FirstRun = true
		res.Changed = true
	}

	var stamped bool
	res.Connection, stamped = recordFetch(&cf, req.FetchSucceeded, req.Now)
	if stamped {
		res.Changed = true
	}

	// A first run records everything it sees as the baseline, since none of
	// it is reported.
	persistNew := req.AutoMarkSeen || req.ForceMarkSeen || res.FirstRun
	if matchCandidates(&cf, req.Candidates, now, persistNew, &res.NewEntries) {
		res.Changed = true
	}

	res.Pruned = Prune(&cf, req.Now, req.PruneMissingAfter, req.PruneAgeAfter)
	if res.Pruned > 0 {
		res.Changed = true
	}

	if res.FirstRun {
		res.NewEntries = nil
	}
	if res.NewEntries == nil {
		res.NewEntries = []cache.CachedEntry{}
	}
	res.Cache = cf
	return res
}

// recordFetch stamps a successful fetch and reports staleness of the last
// one. The bool reports whether the stored timestamp changed.
func recordFetch(cf *cache.CacheFile, succeeded bool, now time.Time) (Connection, bool) {
	if succeeded {
		ts := cache.Unix(now)
		changed := cf.LastSuccessfulRequest == nil || *cf.LastSuccessfulRequest != ts
		cf.LastSuccessfulRequest = &ts
		return Connection{Succeeded: true, LastSuccess: cache.Time(ts)}, changed
	}

	if cf.LastSuccessfulRequest == nil {
		return Connection{Never: true}, false
	}
	last := cache.Time(*cf.LastSuccessfulRequest)
	return Connection{
		LastSuccess: last,
		Stale:       now.Sub(last) > day,
	}, false
}

// matchCandidates updates known entries and collects unknown ones into
// fresh. It reports whether the persisted entry set changed.
func matchCandidates(cf *cache.CacheFile, candidates []cache.NewsEntry, now int64, persistNew bool, fresh *[]cache.CachedEntry) bool {
	changed := false

	index := make(map[string]int, len(cf.Entries))
	for i, e := range cf.Entries {
		if _, dup := index[e.Title]; !dup {
			index[e.Title] = i
		}
	}
	reported := make(map[string]struct{})

	for _, c := range candidates {
		if i, ok := index[c.Title]; ok {
			e := &cf.Entries[i]
			if now > e.LastSeen {
				e.LastSeen = now
				changed = true
			}
			continue
		}
		if _, ok := reported[c.Title]; ok {
			continue
		}
		reported[c.Title] = struct{}{}

		entry := cache.CachedEntry{
			Title:     c.Title,
			Summary:   c.Summary,
			Link:      c.Link,
			FirstSeen: now,
			LastSeen:  now,
		}
		*fresh = append(*fresh, entry)

		if persistNew {
			cf.Entries = append(cf.Entries, entry)
			index[c.Title] = len(cf.Entries) - 1
			changed = true
		}
	}
	return changed
}

// Prune removes entries that have both been missing from the feed for
// missingAfter and were first seen more than ageAfter ago. It returns the
// number of entries removed.
func Prune(cf *cache.CacheFile, now time.Time, missingAfter, ageAfter time.Duration) int {
	missingThreshold := threshold(now, missingAfter)
	ageThreshold := threshold(now, ageAfter)

	kept := cf.Entries[:0]
	for _, e := range cf.Entries {
		if e.LastSeen < missingThreshold && e.FirstSeen < ageThreshold {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(cf.Entries) - len(kept)
	cf.Entries = kept
	return removed
}

// threshold returns now-d in Unix seconds, saturating at zero.
func threshold(now time.Time, d time.Duration) int64 {
	t := cache.Unix(now) - int64(d/time.Second)
	if t < 0 {
		return 0
	}
	return t
}
