package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/repo"
)

func (c *cli) bookmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage bookmarks",
	}

	var rev string
	set := &cobra.Command{
		Use:   "set name",
		Short: "Point a bookmark at a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := c.mutate(cmd, fmt.Sprintf("point bookmark %s to commit", args[0]), func(_ context.Context, tx *repo.Transaction) error {
				id, err := resolveRev(tx.Base(), rev)
				if err != nil {
					return err
				}
				return tx.SetBookmark(args[0], op.Normal(id))
			})
			if err != nil {
				return err
			}
			return next.Close()
		},
	}
	set.Flags().StringVarP(&rev, "revision", "r", "@", "commit to point at")

	list := &cobra.Command{
		Use:   "list",
		Short: "List bookmarks and their targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			view := r.View()
			names := make([]string, 0, len(view.LocalBookmarks))
			for name := range view.LocalBookmarks {
				names = append(names, name)
			}
			slices.Sort(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				t := view.LocalBookmarks[name]
				if id, ok := t.AsNormal(); ok {
					fmt.Fprintf(out, "%s: %s\n", name, oneLine(cmd.Context(), r, id))
					continue
				}
				fmt.Fprintf(out, "%s (conflicted):\n", name)
				for _, id := range t.RemovedIDs() {
					fmt.Fprintf(out, "  - %s\n", oneLine(cmd.Context(), r, id))
				}
				for _, id := range t.AddedIDs() {
					fmt.Fprintf(out, "  + %s\n", oneLine(cmd.Context(), r, id))
				}
			}
			remotes := make([]string, 0, len(view.RemoteBookmarks))
			for remote := range view.RemoteBookmarks {
				remotes = append(remotes, remote)
			}
			slices.Sort(remotes)
			for _, remote := range remotes {
				refs := view.RemoteBookmarks[remote]
				rn := make([]string, 0, len(refs))
				for name := range refs {
					rn = append(rn, name)
				}
				slices.Sort(rn)
				for _, name := range rn {
					if id, ok := refs[name].Target.AsNormal(); ok {
						fmt.Fprintf(out, "%s@%s: %s\n", name, remote, oneLine(cmd.Context(), r, id))
					} else {
						fmt.Fprintf(out, "%s@%s (conflicted)\n", name, remote)
					}
				}
			}
			return nil
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}
