package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/repo"
	"github.com/systemshift/mxvc/internal/store"
)

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create a repository",
		Long: `Create a repository with the root commit and the root operation, and
check out a new empty commit in the default workspace.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.repoPath
			if len(args) == 1 {
				path = args[0]
			}
			ctx := cmd.Context()
			r, err := repo.Init(ctx, path, c.settings, c.options()...)
			if err != nil {
				return err
			}
			defer r.Close()

			tx := r.StartTransaction("add workspace '" + op.DefaultWorkspace + "'")
			if _, err := tx.NewWorkingCopy(ctx, op.DefaultWorkspace, []store.CommitID{r.Store().RootCommitID()}); err != nil {
				tx.Discard()
				return err
			}
			if _, err := tx.Commit(ctx); err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized repo in %q\n", abs)
			return nil
		},
	}
}
