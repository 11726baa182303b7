package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/NLion74/arch-manwarn/internal/cache"
	"github.com/NLion74/arch-manwarn/internal/checker"
	"github.com/NLion74/arch-manwarn/internal/config"
	"github.com/NLion74/arch-manwarn/internal/reconcile"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the news feed for new matching entries",
	Long: `Fetch the configured feeds, report matching entries that were not seen before
and exit with status 1 to block the upgrade, unless warn_only is set.

This is what the pacman hook runs.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Mark all unread matching entries as read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}

		out := a.checker().Check(cmd.Context(), true)
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		printSaveError(cmd.ErrOrStderr(), a.store.Path(), out)

		if len(out.NewEntries) == 0 {
			fmt.Fprintln(w, "No unseen entries — nothing to mark as read.")
			return nil
		}
		fmt.Fprintf(w, "Marked %d entries as manually read.\n", len(out.NewEntries))
		return nil
	},
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	out := a.checker().Check(cmd.Context(), false)
	if err := cmd.Context().Err(); err != nil {
		return err
	}

	w := cmd.ErrOrStderr()
	st := newStyles(w)
	printConnection(w, st, out.Connection, time.Now())
	printSaveError(w, a.store.Path(), out)

	if len(out.NewEntries) == 0 {
		return nil
	}
	printEntries(w, st, out.NewEntries, a.cfg.ShowSummary)

	if a.cfg.WarnOnly {
		fmt.Fprintln(w, st.dim.Render("Arch ManWarn: Warning only mode is enabled, not blocking the upgrade."))
		fmt.Fprintln(w)
		return nil
	}
	fmt.Fprintln(w, st.warn.Render("Arch ManWarn: Exiting to block the upgrade process."))
	fmt.Fprintln(w)
	return errUpgradeBlocked
}

// printConnection warns when this run could not reach any feed and the last
// success is old or missing.
func printConnection(w io.Writer, st styles, conn reconcile.Connection, now time.Time) {
	switch {
	case conn.Succeeded:
	case conn.Never:
		fmt.Fprintln(w, st.warn.Render("Warning: never successfully connected to the RSS feed(s) yet."))
	case conn.Stale:
		fmt.Fprintln(w, st.warn.Render(fmt.Sprintf(
			"Warning: last successful connection to the RSS feed(s) was %.1f days ago.",
			conn.DaysSinceSuccess(now))))
	}
}

func printSaveError(w io.Writer, path string, out checker.Outcome) {
	if out.SaveErr == nil {
		return
	}
	fmt.Fprintf(w, "Failed to write cache file %s: %v\n", path, out.SaveErr)
	fmt.Fprintln(w, "Try running the program as root or with sudo if you want to use /var/cache.")
}

func printEntries(w io.Writer, st styles, entries []cache.CachedEntry, showSummary bool) {
	fmt.Fprintf(w, "\n%s\n\n", st.header.Render("Matched the following Arch news entries:"))
	for _, e := range entries {
		fmt.Fprintf(w, "- %s\n", st.title.Render(e.Title))
		if showSummary {
			fmt.Fprintf(w, "\nSummary: \n%s\n", e.Summary)
		} else {
			fmt.Fprintf(w, "  For more details see: %s\n", st.dim.Render(e.Link))
		}
		fmt.Fprintln(w, "---")
	}
	fmt.Fprintf(w, "\nAll other news can be found on %s.\n", config.ArchNewsURL)
}

func parseSince(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}
