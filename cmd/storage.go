package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/NLion74/arch-manwarn/internal/cache"
)

var (
	flagMissingAfter string
	flagAgeAfter     string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached matching entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if !a.store.Exists() {
			fmt.Fprintln(w, "No cache found. Run `arch-manwarn check` first.")
			return nil
		}
		printStatus(w, newStyles(w), a.store.Load(), time.Now())
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove stale entries from the local cache",
	Long: `Remove cached entries that have not been in the feed for a while and are old
enough, without fetching the feeds.

Uses prune_missing_days and prune_age_days from the config unless overridden
with --missing-after and --age-after.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}

		missingAfter, err := durationFlag("--missing-after", flagMissingAfter, a.cfg.PruneMissingAfter())
		if err != nil {
			return err
		}
		ageAfter, err := durationFlag("--age-after", flagAgeAfter, a.cfg.PruneAgeAfter())
		if err != nil {
			return err
		}

		removed, err := a.checker().Prune(cmd.Context(), missingAfter, ageAfter)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}

		w := cmd.OutOrStdout()
		if removed == 0 {
			fmt.Fprintln(w, "Nothing to prune.")
			return nil
		}
		fmt.Fprintf(w, "Pruned %d %s missing for %s and older than %s.\n",
			removed, plural(removed, "entry", "entries"), formatDuration(missingAfter), formatDuration(ageAfter))
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&flagMissingAfter, "missing-after", "", "override prune_missing_days (e.g., 30d, 720h)")
	pruneCmd.Flags().StringVar(&flagAgeAfter, "age-after", "", "override prune_age_days (e.g., 60d, 1440h)")
}

func durationFlag(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := parseSince(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s value: %s is negative", name, value)
	}
	return d, nil
}

// printStatus lists entries oldest sighting first.
func printStatus(w io.Writer, st styles, cf cache.CacheFile, now time.Time) {
	if len(cf.Entries) == 0 {
		fmt.Fprintln(w, "No cached matching entries found.")
	} else {
		fmt.Fprintf(w, "%s\n\n", st.header.Render("Cached Matching Entries:"))

		entries := make([]cache.CachedEntry, len(cf.Entries))
		copy(entries, cf.Entries)
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].LastSeen < entries[j].LastSeen
		})

		for _, e := range entries {
			fmt.Fprintf(w, "- %s %s\n", st.title.Render(e.Title), st.dim.Render(fmt.Sprintf(
				"(first seen %.1f day(s) ago, last seen %.1f day(s) ago)",
				cache.DaysSince(e.FirstSeen, now), cache.DaysSince(e.LastSeen, now))))
		}
	}

	if cf.LastSuccessfulRequest == nil {
		fmt.Fprintln(w, "\nLast successful feed request: never.")
		return
	}
	days := cache.DaysSince(*cf.LastSuccessfulRequest, now)
	fmt.Fprintf(w, "\nLast successful feed request: %.1f %s ago.\n", days, dayUnit(days))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func dayUnit(days float64) string {
	if days == 1.0 {
		return "day"
	}
	return "days"
}

func formatDuration(d time.Duration) string {
	h := d.Hours()
	days := int(h / 24)
	if days > 0 && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return d.String()
}
