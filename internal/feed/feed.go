package feed

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/NLion74/arch-manwarn/internal/cache"
)

const (
	userAgent      = "arch-manwarn"
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	retryBase      = 500 * time.Millisecond
	maxParallel    = 8
	maxBodySize    = 8 << 20
	maxSummaryLen  = 4096

	noTitle   = "[No title provided]"
	noLink    = "[No link provided]"
	noSummary = "[No summary provided]"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]cache.NewsEntry, error)
}

// HTTPFetcher downloads a feed over HTTP and parses it as RSS, Atom or JSON
// Feed.
type HTTPFetcher struct {
	client  *http.Client
	parser  *gofeed.Parser
	retries uint64
	// item content instead of description as the summary
	useContent bool
}

type Option func(*HTTPFetcher)

func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

func WithRetries(n uint64) Option {
	return func(f *HTTPFetcher) { f.retries = n }
}

// WithContentAsSummary uses item content rather than description.
func WithContentAsSummary(on bool) Option {
	return func(f *HTTPFetcher) { f.useContent = on }
}

func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: defaultTimeout},
		parser:  gofeed.NewParser(),
		retries: defaultRetries,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// statusError is returned for non-2xx responses.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]cache.NewsEntry, error) {
	var body []byte
	b := retry.WithMaxRetries(f.retries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		data, err := f.get(ctx, url)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code < http.StatusInternalServerError {
				return err
			}
			return retry.RetryableError(err)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}

	entries := make([]cache.NewsEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entries = append(entries, f.toEntry(item))
	}
	return entries, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return data, nil
}

func (f *HTTPFetcher) toEntry(item *gofeed.Item) cache.NewsEntry {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = noTitle
	}
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = noLink
	}

	raw := item.Description
	if f.useContent {
		raw = item.Content
	}
	summary := toText(raw)
	if summary == "" {
		summary = noSummary
	}

	return cache.NewsEntry{Title: title, Summary: summary, Link: link}
}

var (
	stripPolicy = bluemonday.StrictPolicy()
	blockBreaks = strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"</p>", "\n\n", "</li>", "\n", "</pre>", "\n",
		"</h1>", "\n\n", "</h2>", "\n\n", "</h3>", "\n\n",
	)
)

// toText reduces an HTML fragment to plain text, keeping paragraph breaks.
func toText(s string) string {
	s = blockBreaks.Replace(s)
	s = html.UnescapeString(stripPolicy.Sanitize(s))

	var lines []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(lines) > 0 && !blank {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		blank = false
		lines = append(lines, line)
	}
	out := strings.TrimSpace(strings.Join(lines, "\n"))
	return truncate(out, maxSummaryLen)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

type Result struct {
	Entries []cache.NewsEntry
	Errors  []error
}

// Succeeded reports whether any feed produced at least one entry.
func (r Result) Succeeded() bool {
	return len(r.Entries) > 0
}

// FetchAll fetches every URL concurrently and flattens the results. A failing
// feed is recorded in Errors and does not affect the others.
func FetchAll(ctx context.Context, fetcher Fetcher, urls []string) Result {
	var (
		mu     sync.Mutex
		result Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, u := range urls {
		g.Go(func() error {
			entries, err := fetcher.Fetch(gctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.WarnContext(gctx, "feed fetch failed", "url", u, "error", err)
				result.Errors = append(result.Errors, err)
				return nil
			}
			result.Entries = append(result.Entries, entries...)
			return nil
		})
	}
	_ = g.Wait()
	return result
}
