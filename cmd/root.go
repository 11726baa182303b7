package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/NLion74/arch-manwarn/internal/cache"
	"github.com/NLion74/arch-manwarn/internal/checker"
	"github.com/NLion74/arch-manwarn/internal/config"
	"github.com/NLion74/arch-manwarn/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var flagConfig string

// errUpgradeBlocked makes the process exit with status 1, which aborts the
// pacman transaction.
var errUpgradeBlocked = errors.New("upgrade blocked by unread news")

const banner = `arch-manwarn is installed as a pacman hook to check for relevant entries in the Arch Linux news feed.
There are 4 modes of operation:

arch-manwarn            - Shows this short message to confirm installation.
arch-manwarn check      - Used internally by the pacman hook to check for new matching entries.
arch-manwarn status     - Shows a summary of cached matching entries, including how long ago they were first and last seen.
arch-manwarn read       - Manually marks all unread items as read (usually not needed unless configuration is adjusted).

Maintenance:

arch-manwarn prune      - Applies the cache retention rules without fetching the feeds.
arch-manwarn version    - Prints version information.
`

var rootCmd = &cobra.Command{
	Use:           "arch-manwarn",
	Short:         "Warn about Arch Linux news that needs manual intervention",
	Long:          "arch-manwarn checks the Arch Linux news feed before an upgrade and blocks it while matching entries are unread.",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), banner)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pruneCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "arch-manwarn %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// app is the per-invocation state shared by the subcommands.
type app struct {
	cfg   *config.Config
	store cache.Store
}

// loadApp reads the environment, sets up logging and loads the config. A
// broken config file is reported and the defaults are used instead.
func loadApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	envFileErr := config.LoadEnvFile(config.DefaultEnvFilePath())

	env, err := config.LoadEnv(ctx)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.New(cmd.ErrOrStderr(), env.LogFormat, env.LogLevel))
	if envFileErr != nil {
		slog.WarnContext(ctx, "ignoring environment file", "error", envFileErr)
	}

	cfgPath := env.ResolveConfigPath(flagConfig)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.ErrorContext(ctx, "invalid config, using defaults", "path", cfgPath, "error", err)
	}

	return &app{
		cfg:   cfg,
		store: cache.Open(env.ResolveCachePath(cfg)),
	}, nil
}

func (a *app) checker() *checker.Checker {
	return checker.New(a.cfg, a.store, checker.NewFeedSource(a.cfg))
}

// Execute runs the command tree and exits with 1 when the upgrade must be
// blocked and 2 on any other error.
func Execute() {
	if code := execute(context.Background()); code != 0 {
		os.Exit(code)
	}
}

func execute(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		return rootCmd.ExecuteContext(ctx)
	}, func(error) {
		cancel()
	})
	return exitCode(rootCmd.ErrOrStderr(), g.Run())
}

func exitCode(w io.Writer, err error) int {
	var sig run.SignalError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUpgradeBlocked):
		return 1
	case errors.As(err, &sig):
		fmt.Fprintf(w, "Interrupted by %s.\n", sig.Signal)
		return 2
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
		fmt.Fprintln(w, "Run 'arch-manwarn --help' for usage.")
		return 2
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
