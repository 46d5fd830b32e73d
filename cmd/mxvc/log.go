package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/mxvc/internal/index"
	"github.com/systemshift/mxvc/internal/store"
)

func (c *cli) logCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show visible commits, children first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r, err := c.load(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			view := r.View()
			labels := map[store.CommitID][]string{}
			for name, t := range view.LocalBookmarks {
				for _, id := range t.AddedIDs() {
					label := name
					if t.IsConflicted() {
						label += "??"
					}
					labels[id] = append(labels[id], label)
				}
			}
			for ws, id := range view.WorkspaceCheckouts {
				labels[id] = append(labels[id], ws+"@")
			}

			ids := r.Index().TopoOrder(index.Sorted(r.Visible()))
			slices.Reverse(ids)
			if limit > 0 && len(ids) > limit {
				ids = ids[:limit]
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				commit, err := r.Commit(ctx, id)
				if err != nil {
					return err
				}
				fields := []string{id.Short(), commit.ChangeID.Short()}
				if l := labels[id]; len(l) > 0 {
					slices.Sort(l)
					fields = append(fields, strings.Join(l, " "))
				}
				if id == r.Store().RootCommitID() {
					fields = append(fields, "(root)")
					fmt.Fprintln(out, strings.Join(fields, " "))
					continue
				}
				conflicted, err := r.Store().TreeHasConflict(ctx, commit.Tree)
				if err != nil {
					return err
				}
				if conflicted {
					fields = append(fields, "(conflict)")
				}
				if len(commit.Parents) == 1 {
					parent, err := r.Commit(ctx, commit.Parents[0])
					if err != nil {
						return err
					}
					if parent.Tree == commit.Tree {
						fields = append(fields, "(empty)")
					}
				}
				desc, _, _ := strings.Cut(commit.Description, "\n")
				if desc == "" {
					desc = "(no description set)"
				}
				fields = append(fields, desc)
				fmt.Fprintln(out, strings.Join(fields, " "))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many commits")
	return cmd
}
