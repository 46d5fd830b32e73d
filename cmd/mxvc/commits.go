package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/repo"
	"github.com/systemshift/mxvc/internal/store"
)

// oneLine formats a commit as its short id and the first line of its
// description.
func oneLine(ctx context.Context, r *repo.ReadonlyRepo, id store.CommitID) string {
	c, err := r.Commit(ctx, id)
	if err != nil {
		return id.Short()
	}
	desc, _, _ := strings.Cut(c.Description, "\n")
	if desc == "" {
		desc = "(no description set)"
	}
	return id.Short() + " " + desc
}

func (c *cli) newCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "new [revisions...]",
		Short: "Create an empty commit and check it out",
		Long: `Create an empty commit on the given revisions (default: the current
working-copy commit) and make it the working-copy commit of the default
workspace. Several revisions create a merge commit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"@"}
			}
			var wc store.CommitID
			next, err := c.mutate(cmd, "new empty commit", func(ctx context.Context, tx *repo.Transaction) error {
				parents, err := resolveRevs(tx, args)
				if err != nil {
					return err
				}
				id, err := tx.New(ctx, parents, message, nil)
				if err != nil {
					return err
				}
				wc = id
				return tx.SetWorkspaceCheckout(op.DefaultWorkspace, id)
			})
			if err != nil {
				return err
			}
			defer next.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Working copy now at:", oneLine(cmd.Context(), next, wc))
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "description of the new commit")
	return cmd
}

func (c *cli) describeCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "describe [revision]",
		Short: "Set the description of a commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := "@"
			if len(args) == 1 {
				rev = args[0]
			}
			var report *repo.RebaseReport
			var described store.CommitID
			next, err := c.mutate(cmd, "describe commit", func(ctx context.Context, tx *repo.Transaction) error {
				id, err := resolveRev(tx.Base(), rev)
				if err != nil {
					return err
				}
				described, err = tx.RewriteCommit(ctx, id).SetDescription(message).Write(ctx)
				if err != nil {
					return err
				}
				report, err = tx.RebaseDescendants(ctx, repo.RebaseOptions{})
				return err
			})
			if err != nil {
				return err
			}
			defer next.Close()
			printReport(cmd, report)
			fmt.Fprintln(cmd.OutOrStdout(), "Described:", oneLine(cmd.Context(), next, described))
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "the new description")
	return cmd
}

func (c *cli) abandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon [revisions...]",
		Short: "Abandon commits, rebasing their descendants onto their parents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"@"}
			}
			var report *repo.RebaseReport
			next, err := c.mutate(cmd, "abandon commits", func(ctx context.Context, tx *repo.Transaction) error {
				ids, err := resolveRevs(tx, args)
				if err != nil {
					return err
				}
				report, err = tx.Abandon(ctx, ids...)
				return err
			})
			if err != nil {
				return err
			}
			defer next.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Abandoned %d commits\n", len(args))
			printReport(cmd, report)
			return nil
		},
	}
}

func (c *cli) squashCmd() *cobra.Command {
	var from, into string
	cmd := &cobra.Command{
		Use:   "squash",
		Short: "Move the changes of one commit into another",
		Long: `Move the changes of --from (default: @) into --into (default: the only
parent of --from) and abandon --from. Descriptions are combined.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var squashed store.CommitID
			next, err := c.mutate(cmd, "squash commits", func(ctx context.Context, tx *repo.Transaction) error {
				src, err := resolveRev(tx.Base(), from)
				if err != nil {
					return err
				}
				var dst store.CommitID
				if into != "" {
					dst, err = resolveRev(tx.Base(), into)
					if err != nil {
						return err
					}
				} else {
					parents := tx.Index().Parents(src)
					if len(parents) != 1 {
						return errors.New("cannot squash a merge commit without --into")
					}
					dst = parents[0]
				}
				squashed, err = tx.Squash(ctx, src, dst)
				return err
			})
			if err != nil {
				return err
			}
			defer next.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Squashed into:", oneLine(cmd.Context(), next, squashed))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "@", "commit whose changes to move")
	cmd.Flags().StringVar(&into, "into", "", "commit that receives the changes")
	return cmd
}

func (c *cli) splitCmd() *cobra.Command {
	var rev string
	cmd := &cobra.Command{
		Use:   "split paths...",
		Short: "Split the changes to paths out of a commit",
		Long: `Split a commit in two: the first holds the changes to the given paths,
the second the rest. Bookmarks and descendants follow the second.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var first, second store.CommitID
			next, err := c.mutate(cmd, "split commit", func(ctx context.Context, tx *repo.Transaction) error {
				id, err := resolveRev(tx.Base(), rev)
				if err != nil {
					return err
				}
				first, second, err = tx.Split(ctx, id, args)
				return err
			})
			if err != nil {
				return err
			}
			defer next.Close()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "First part:", oneLine(cmd.Context(), next, first))
			fmt.Fprintln(out, "Second part:", oneLine(cmd.Context(), next, second))
			return nil
		},
	}
	cmd.Flags().StringVarP(&rev, "revision", "r", "@", "commit to split")
	return cmd
}
