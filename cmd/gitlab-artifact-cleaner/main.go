// Command gitlab-artifact-cleaner deletes expired CI job artifacts from a
// GitLab project or from every project of a group.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/config"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/ui"
)

func main() {
	ui.ConfigureColor()

	// Signal-aware context for graceful cancellation
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderFail(ui.IconFail+" Error: "+err.Error()))
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	verbose    bool
	quiet      bool
}

// newRootCmd builds the command tree around a fresh viper instance so tests
// can run it repeatedly.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := config.New()
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "gitlab-artifact-cleaner",
		Short: "Delete expired GitLab CI job artifacts",
		Long: `Walks the CI jobs of a GitLab project, or of every project in a group
and its subgroups, and deletes job artifacts that have expired. Artifacts
of open merge requests and unmerged branches are kept.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runClean(cmd.Context(), cfg, newLogger(stderr, opts), stdout)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringP("server", "s", "", "GitLab base URL, e.g. https://gitlab.example.com")
	flags.StringP("token", "t", "", "GitLab private token (api scope)")
	flags.Bool("ignore-expire", false, "Treat every artifact as expired")
	flags.Bool("ignore-mr", false, "Ignore merge request and branch state")
	flags.String("group-id", "", "Group ID or path to clean, including subgroups")
	flags.String("project-id", "", "Project ID or path to clean")
	flags.Bool("dry-run", false, "Evaluate and report without deleting")
	flags.String("as-of", "", `Reference time for expiry (RFC3339, 2006-01-02, -2d, "next friday")`)
	flags.StringVar(&opts.configPath, "config", config.DefaultPath(), "Config file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Log warnings and errors only")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	bindFlags(v, flags, boundKeys...)

	rootCmd.AddCommand(newVersionCmd(), newConfigCmd(v, opts))
	return rootCmd
}

// boundKeys are the config keys with a flag of the same name.
var boundKeys = []string{
	config.KeyServer, config.KeyToken, config.KeyIgnoreExpire, config.KeyIgnoreMR,
	config.KeyGroupID, config.KeyProjectID, config.KeyDryRun, config.KeyAsOf,
}

// bindFlags binds each key to the flag of the same name. A missing flag is a
// programming error and panics.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys ...string) {
	for _, key := range keys {
		f := flags.Lookup(key)
		if f == nil {
			panic(fmt.Sprintf("no flag for config key %q", key))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind flag %q: %v", key, err))
		}
	}
}

// loadConfig merges the config file into v and reads the result.
func loadConfig(cmd *cobra.Command, v *viper.Viper, opts *rootOptions) (config.Config, error) {
	explicit := cmd.Flags().Changed("config")
	if err := config.ReadFile(v, opts.configPath, explicit); err != nil {
		return config.Config{}, err
	}
	return config.Load(v), nil
}

func newLogger(w io.Writer, opts *rootOptions) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case opts.verbose:
		level = slog.LevelDebug
	case opts.quiet:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
