package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/NLion74/arch-manwarn/internal/match"
)

const (
	appName = "arch-manwarn"

	// Pacman hooks run as root, so the system locations are the defaults.
	systemConfigPath = "/etc/arch-manwarn/config.toml"
	systemCachePath  = "/var/cache/arch-manwarn.json"

	// ArchNewsURL is where the full news archive lives.
	ArchNewsURL = "https://archlinux.org/news/"
)

type Config struct {
	// Keywords to search for in news entries.
	Keywords []string `toml:"keywords" yaml:"keywords"`
	// Every entry is a candidate, not just those with keywords.
	MatchAllEntries bool     `toml:"match_all_entries" yaml:"match_all_entries"`
	IgnoredKeywords []string `toml:"ignored_keywords" yaml:"ignored_keywords"`
	CaseSensitive   bool     `toml:"case_sensitive" yaml:"case_sensitive"`
	// Search the summary as well as the title.
	IncludeSummaryInQuery bool `toml:"include_summary_in_query" yaml:"include_summary_in_query"`

	PruneMissingDays int `toml:"prune_missing_days" yaml:"prune_missing_days"`
	PruneAgeDays     int `toml:"prune_age_days" yaml:"prune_age_days"`

	RSSFeedURLs []string `toml:"rss_feed_urls" yaml:"rss_feed_urls"`
	// Show the summary instead of the link on check.
	ShowSummary                   bool `toml:"show_summary" yaml:"show_summary"`
	ReplaceDescriptionWithContent bool `toml:"replace_description_with_content" yaml:"replace_description_with_content"`

	MarkAsReadAutomatically bool `toml:"mark_as_read_automatically" yaml:"mark_as_read_automatically"`
	// Warn without blocking the transaction.
	WarnOnly bool `toml:"warn_only" yaml:"warn_only"`

	CachePath string `toml:"cache_path" yaml:"cache_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Keywords:                []string{"manual intervention"},
		IgnoredKeywords:         []string{},
		IncludeSummaryInQuery:   true,
		PruneMissingDays:        30,
		PruneAgeDays:            60,
		RSSFeedURLs:             []string{"https://archlinux.org/feeds/news/"},
		MarkAsReadAutomatically: true,
		CachePath:               DefaultCachePath(),
	}
}

func (c *Config) PruneMissingAfter() time.Duration {
	return time.Duration(c.PruneMissingDays) * 24 * time.Hour
}

func (c *Config) PruneAgeAfter() time.Duration {
	return time.Duration(c.PruneAgeDays) * 24 * time.Hour
}

func (c *Config) MatchOptions() match.Options {
	return match.Options{
		Keywords:              c.Keywords,
		IgnoredKeywords:       c.IgnoredKeywords,
		CaseSensitive:         c.CaseSensitive,
		IncludeSummaryInQuery: c.IncludeSummaryInQuery,
		MatchAllEntries:       c.MatchAllEntries,
	}
}

func isRoot() bool {
	return os.Geteuid() == 0
}

func DefaultConfigPath() string {
	if isRoot() {
		return systemConfigPath
	}
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

func DefaultCachePath() string {
	if isRoot() {
		return systemCachePath
	}
	return filepath.Join(xdg.CacheHome, appName, "cache.json")
}

type format int

const (
	formatTOML format = iota
	formatYAML
)

func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatTOML
	}
}

// Load reads the configuration at path.
//
// A missing file is created with the defaults. A file that cannot be read,
// parsed or validated yields the defaults together with the error, and is
// left untouched. Keys that are missing or hold the wrong type are reset to
// their defaults and the repaired file is written back.
//
// The returned config is never nil.
func Load(path string) (*Config, error) {
	defaults := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := Save(path, defaults); err != nil {
				slog.Warn("writing default config", "path", path, "error", err)
			} else {
				slog.Info("created default config", "path", path)
			}
			return defaults, nil
		}
		return defaults, fmt.Errorf("reading config: %w", err)
	}

	raw, err := decode(data, formatFor(path))
	if err != nil {
		return defaults, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg, repaired := fromMap(raw, defaults)
	if err := validate(cfg); err != nil {
		return defaults, fmt.Errorf("config %s: %w", path, err)
	}

	if len(repaired) > 0 {
		slog.Warn("config had missing or invalid fields, reset to defaults", "path", path, "fields", repaired)
		if err := Save(path, cfg); err != nil {
			slog.Warn("writing repaired config", "path", path, "error", err)
		}
	}
	return cfg, nil
}

func decode(data []byte, f format) (map[string]any, error) {
	raw := map[string]any{}
	switch f {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	switch formatFor(path) {
	case formatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	default:
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func validate(cfg *Config) error {
	for _, raw := range cfg.RSSFeedURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("feed %q: invalid url: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("feed %q: url scheme must be http or https, got %q", raw, u.Scheme)
		}
	}
	return nil
}
