package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/systemshift/mxvc/internal/config"
	"github.com/systemshift/mxvc/internal/logging"
	"github.com/systemshift/mxvc/internal/metrics"
	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/repo"
	"github.com/systemshift/mxvc/internal/store"
)

// cli is the state shared by every subcommand of one invocation.
type cli struct {
	v        *viper.Viper
	cfgFile  string
	repoPath string
	settings *config.Settings
	metrics  *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New(), metrics: metrics.New()}
	root := &cobra.Command{
		Use:   "mxvc",
		Short: "Inspect and rewrite an mxvc repository",
		Long: `mxvc creates and rewrites commits in a repository whose every change
is recorded as an operation. Concurrent writers never lose work: divergent
operations are merged automatically the next time the repository is loaded.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.config/mxvc/config.toml)")
	flags.StringVarP(&c.repoPath, "repository", "R", ".", "path to the repository")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")
	if err := c.v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		panic(err)
	}
	if err := c.v.BindPFlag("log.format", flags.Lookup("log-format")); err != nil {
		panic(err)
	}

	root.AddCommand(
		c.initCmd(),
		c.newCmd(),
		c.logCmd(),
		c.describeCmd(),
		c.abandonCmd(),
		c.rebaseCmd(),
		c.squashCmd(),
		c.splitCmd(),
		c.bookmarkCmd(),
		c.opCmd(),
		c.debugCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := config.ReadFile(c.v, c.cfgFile); err != nil {
		return err
	}
	s, err := config.FromViper(c.v)
	if err != nil {
		return err
	}
	if err := logging.Configure(s.LogLevel, s.LogFormat, cmd.ErrOrStderr()); err != nil {
		return err
	}
	c.settings = s
	return nil
}

func (c *cli) options() []repo.Option {
	return []repo.Option{repo.WithLogger(logging.For("repo")), repo.WithMetrics(c.metrics)}
}

func (c *cli) load(ctx context.Context) (*repo.ReadonlyRepo, error) {
	return repo.Load(ctx, c.repoPath, c.settings, c.options()...)
}

// mutate runs fn in one transaction and reports when it changed nothing.
func (c *cli) mutate(cmd *cobra.Command, description string, fn repo.MutateFunc) (*repo.ReadonlyRepo, error) {
	ctx := cmd.Context()
	r, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	next, err := r.Mutate(ctx, description, fn)
	if err != nil {
		r.Close()
		return nil, err
	}
	if next.OperationID() == r.OperationID() {
		fmt.Fprintln(cmd.OutOrStdout(), sentence(repo.ErrNothingChanged))
	}
	return next, nil
}

// sentence renders an error message as a capitalized sentence.
func sentence(err error) string {
	msg := err.Error()
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

// resolveRev accepts "@" for the default workspace's checkout on top of
// what the repo resolves itself.
func resolveRev(r *repo.ReadonlyRepo, rev string) (store.CommitID, error) {
	if rev == "@" {
		rev = op.DefaultWorkspace + "@"
	}
	return r.ResolveCommit(rev)
}

func resolveRevs(tx *repo.Transaction, revs []string) ([]store.CommitID, error) {
	out := make([]store.CommitID, 0, len(revs))
	for _, rev := range revs {
		id, err := resolveRev(tx.Base(), rev)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func printReport(cmd *cobra.Command, report *repo.RebaseReport) {
	if report == nil {
		return
	}
	for _, line := range report.Summary() {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}
