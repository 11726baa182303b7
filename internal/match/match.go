// Package match filters fetched news entries down to the candidates the
// reconciler considers.
package match

import (
	"strings"

	"github.com/NLion74/arch-manwarn/internal/cache"
)

// Options mirrors the keyword section of the configuration.
type Options struct {
	Keywords              []string
	IgnoredKeywords       []string
	CaseSensitive         bool
	IncludeSummaryInQuery bool
	MatchAllEntries       bool
}

// Matcher decides candidate membership. Keywords are normalized once at
// construction.
type Matcher struct {
	opts     Options
	keywords []string
	ignored  []string
}

func New(opts Options) *Matcher {
	return &Matcher{
		opts:     opts,
		keywords: normalize(opts.Keywords, opts.CaseSensitive),
		ignored:  normalize(opts.IgnoredKeywords, opts.CaseSensitive),
	}
}

func normalize(words []string, caseSensitive bool) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if !caseSensitive {
			w = strings.ToLower(w)
		}
		out = append(out, w)
	}
	return out
}

// Matches reports whether e is a candidate. Ignored keywords always win.
func (m *Matcher) Matches(e cache.NewsEntry) bool {
	if m.isIgnored(e) {
		return false
	}
	if m.opts.MatchAllEntries {
		return true
	}

	text := e.Title
	if m.opts.IncludeSummaryInQuery {
		text = e.Title + " " + e.Summary
	}
	return containsAny(m.fold(text), m.keywords)
}

func (m *Matcher) isIgnored(e cache.NewsEntry) bool {
	if len(m.ignored) == 0 {
		return false
	}
	if containsAny(m.fold(e.Title), m.ignored) {
		return true
	}
	return m.opts.IncludeSummaryInQuery && containsAny(m.fold(e.Summary), m.ignored)
}

func (m *Matcher) fold(s string) string {
	if m.opts.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Filter returns the entries that match, preserving order.
func (m *Matcher) Filter(entries []cache.NewsEntry) []cache.NewsEntry {
	var out []cache.NewsEntry
	for _, e := range entries {
		if m.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
