// Package checker runs one fetch, match and reconcile cycle against the
// on-disk cache.
package checker

import (
	"context"
	"log/slog"
	"time"

	"github.com/NLion74/arch-manwarn/internal/cache"
	"github.com/NLion74/arch-manwarn/internal/config"
	"github.com/NLion74/arch-manwarn/internal/feed"
	"github.com/NLion74/arch-manwarn/internal/logger"
	"github.com/NLion74/arch-manwarn/internal/match"
	"github.com/NLion74/arch-manwarn/internal/reconcile"
)

const defaultLockTimeout = 5 * time.Second

// Source produces the fetched, unfiltered news entries.
type Source interface {
	Fetch(ctx context.Context) feed.Result
}

// FeedSource fetches the configured feed URLs.
type FeedSource struct {
	fetcher feed.Fetcher
	urls    []string
}

func NewFeedSource(cfg *config.Config, opts ...feed.Option) *FeedSource {
	opts = append([]feed.Option{feed.WithContentAsSummary(cfg.ReplaceDescriptionWithContent)}, opts...)
	return &FeedSource{
		fetcher: feed.NewHTTPFetcher(opts...),
		urls:    cfg.RSSFeedURLs,
	}
}

func (s *FeedSource) Fetch(ctx context.Context) feed.Result {
	return feed.FetchAll(ctx, s.fetcher, s.urls)
}

type Checker struct {
	cfg     *config.Config
	store   cache.Store
	source  Source
	matcher *match.Matcher

	now         func() time.Time
	lock        bool
	lockTimeout time.Duration
}

type Option func(*Checker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

func WithLockTimeout(d time.Duration) Option {
	return func(c *Checker) { c.lockTimeout = d }
}

// WithoutLock skips the cross-process cache lock.
func WithoutLock() Option {
	return func(c *Checker) { c.lock = false }
}

func New(cfg *config.Config, store cache.Store, src Source, opts ...Option) *Checker {
	c := &Checker{
		cfg:         cfg,
		store:       store,
		source:      src,
		matcher:     match.New(cfg.MatchOptions()),
		now:         time.Now,
		lock:        true,
		lockTimeout: defaultLockTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Outcome is what a check run reports back to the command line.
type Outcome struct {
	NewEntries  []cache.CachedEntry
	Connection  reconcile.Connection
	FirstRun    bool
	Pruned      int
	Saved       bool
	SaveErr     error
	FetchErrors []error
}

// Check fetches, filters and reconciles. forceMarkRead persists every new
// entry even when automatic marking is off. Check never fails: a cache that
// cannot be written is reported in Outcome.SaveErr and the in-memory result
// is returned regardless. Once ctx is cancelled Check stops before touching
// the cache; callers check ctx.Err().
func (c *Checker) Check(ctx context.Context, forceMarkRead bool) Outcome {
	ctx = logger.Ctx(ctx, slog.String("cache", c.store.Path()), slog.Bool("force", forceMarkRead))
	now := c.now()

	fetched := c.source.Fetch(ctx)
	candidates := c.matcher.Filter(fetched.Entries)
	slog.DebugContext(ctx, "fetched feeds",
		"entries", len(fetched.Entries),
		"candidates", len(candidates),
		"errors", len(fetched.Errors))

	if ctx.Err() != nil {
		return Outcome{FetchErrors: fetched.Errors}
	}

	unlock := c.acquire(ctx)
	defer unlock()
	if ctx.Err() != nil {
		return Outcome{FetchErrors: fetched.Errors}
	}

	firstRun := !c.store.Exists()
	res := reconcile.Reconcile(reconcile.Request{
		Candidates:        candidates,
		FetchSucceeded:    fetched.Succeeded(),
		Now:               now,
		ForceMarkSeen:     forceMarkRead,
		AutoMarkSeen:      c.cfg.MarkAsReadAutomatically,
		PruneMissingAfter: c.cfg.PruneMissingAfter(),
		PruneAgeAfter:     c.cfg.PruneAgeAfter(),
		Existing:          c.store.Load(),
		WasFirstRun:       firstRun,
	})

	out := Outcome{
		NewEntries:  res.NewEntries,
		Connection:  res.Connection,
		FirstRun:    res.FirstRun,
		Pruned:      res.Pruned,
		FetchErrors: fetched.Errors,
	}
	if res.Changed {
		out.SaveErr = c.save(ctx, res.Cache)
		out.Saved = out.SaveErr == nil
	}
	slog.InfoContext(ctx, "reconciled",
		"new", len(res.NewEntries),
		"first_run", res.FirstRun,
		"pruned", res.Pruned,
		"saved", out.Saved)
	return out
}

// Prune applies only the retention rule to the stored cache and returns the
// number of entries removed. A cancelled ctx returns its error and leaves the
// cache alone.
func (c *Checker) Prune(ctx context.Context, missingAfter, ageAfter time.Duration) (int, error) {
	ctx = logger.Ctx(ctx, slog.String("cache", c.store.Path()))

	unlock := c.acquire(ctx)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if !c.store.Exists() {
		return 0, nil
	}
	cf := c.store.Load()
	removed := reconcile.Prune(&cf, c.now(), missingAfter, ageAfter)
	if removed == 0 {
		return 0, nil
	}
	if err := c.save(ctx, cf); err != nil {
		return 0, err
	}
	return removed, nil
}

func (c *Checker) save(ctx context.Context, cf cache.CacheFile) error {
	if err := c.store.Save(cf); err != nil {
		slog.WarnContext(ctx, "saving cache, keeping state in memory for this run", "error", err)
		return err
	}
	return nil
}

// acquire takes the cache lock, falling back to running unlocked.
func (c *Checker) acquire(ctx context.Context) func() {
	if !c.lock {
		return func() {}
	}
	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	u, err := cache.Lock(lockCtx, c.store.Path())
	if err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "continuing without cache lock", "error", err)
	}
	return func() {
		if err := u.Unlock(); err != nil {
			slog.WarnContext(ctx, "releasing cache lock", "error", err)
		}
	}
}
