package config

import (
	"math"
	"sort"
)

// field binds one configuration key to the struct member it sets. apply
// reports false when the raw value has the wrong type or is out of range.
type field struct {
	key   string
	apply func(cfg *Config, v any) bool
}

var fields = []field{
	{"keywords", stringsField(func(c *Config) *[]string { return &c.Keywords })},
	{"match_all_entries", boolField(func(c *Config) *bool { return &c.MatchAllEntries })},
	{"ignored_keywords", stringsField(func(c *Config) *[]string { return &c.IgnoredKeywords })},
	{"case_sensitive", boolField(func(c *Config) *bool { return &c.CaseSensitive })},
	{"include_summary_in_query", boolField(func(c *Config) *bool { return &c.IncludeSummaryInQuery })},
	{"prune_missing_days", daysField(func(c *Config) *int { return &c.PruneMissingDays })},
	{"prune_age_days", daysField(func(c *Config) *int { return &c.PruneAgeDays })},
	{"rss_feed_urls", stringsField(func(c *Config) *[]string { return &c.RSSFeedURLs })},
	{"show_summary", boolField(func(c *Config) *bool { return &c.ShowSummary })},
	{"replace_description_with_content", boolField(func(c *Config) *bool { return &c.ReplaceDescriptionWithContent })},
	{"mark_as_read_automatically", boolField(func(c *Config) *bool { return &c.MarkAsReadAutomatically })},
	{"warn_only", boolField(func(c *Config) *bool { return &c.WarnOnly })},
	{"cache_path", stringField(func(c *Config) *string { return &c.CachePath })},
}

// fromMap builds a Config from decoded key/values, starting from defaults.
// It returns the keys that were missing or invalid, sorted.
func fromMap(raw map[string]any, defaults *Config) (*Config, []string) {
	cfg := *defaults
	cfg.Keywords = append([]string{}, defaults.Keywords...)
	cfg.IgnoredKeywords = append([]string{}, defaults.IgnoredKeywords...)
	cfg.RSSFeedURLs = append([]string{}, defaults.RSSFeedURLs...)

	var repaired []string
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok || !f.apply(&cfg, v) {
			repaired = append(repaired, f.key)
		}
	}
	sort.Strings(repaired)
	return &cfg, repaired
}

func boolField(get func(*Config) *bool) func(*Config, any) bool {
	return func(c *Config, v any) bool {
		b, ok := v.(bool)
		if ok {
			*get(c) = b
		}
		return ok
	}
}

func stringField(get func(*Config) *string) func(*Config, any) bool {
	return func(c *Config, v any) bool {
		s, ok := v.(string)
		if ok {
			*get(c) = s
		}
		return ok
	}
}

func stringsField(get func(*Config) *[]string) func(*Config, any) bool {
	return func(c *Config, v any) bool {
		list, ok := v.([]any)
		if !ok {
			return false
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return false
			}
			out = append(out, s)
		}
		*get(c) = out
		return true
	}
}

func daysField(get func(*Config) *int) func(*Config, any) bool {
	return func(c *Config, v any) bool {
		n, ok := asInt(v)
		if !ok || n < 0 {
			return false
		}
		*get(c) = n
		return true
	}
}

// asInt accepts the integer shapes produced by the TOML and YAML decoders.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
