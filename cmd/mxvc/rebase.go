package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/systemshift/mxvc/internal/repo"
)

type rebaseFlags struct {
	revisions, sources, branches []string
	destination, after, before   []string
	skipEmptied, keepDivergent   bool
}

// request turns the flags into a move with commit ids still unresolved.
func (f *rebaseFlags) request() (repo.MoveRequest, []string, []string, error) {
	var req repo.MoveRequest
	var targets []string
	switch {
	case len(f.revisions) > 0:
		req.Mode, targets = repo.Revisions, f.revisions
	case len(f.sources) > 0:
		req.Mode, targets = repo.Source, f.sources
	case len(f.branches) > 0:
		req.Mode, targets = repo.Branch, f.branches
	default:
		req.Mode, targets = repo.Branch, []string{"@"}
	}

	var onto []string
	n := 0
	for _, loc := range []struct {
		revs []string
		l    repo.Location
	}{
		{f.destination, repo.Destination},
		{f.after, repo.InsertAfter},
		{f.before, repo.InsertBefore},
	} {
		if len(loc.revs) > 0 {
			req.Location, onto = loc.l, loc.revs
			n++
		}
	}
	if n != 1 {
		return req, nil, nil, errors.New("exactly one of --destination, --insert-after or --insert-before is required")
	}
	if f.skipEmptied {
		req.Empty = repo.AbandonNewlyEmpty
	}
	req.KeepDivergent = f.keepDivergent
	return req, targets, onto, nil
}

func (c *cli) rebaseCmd() *cobra.Command {
	f := &rebaseFlags{}
	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Move commits to a different location",
		Long: `Move commits to new parents, rewriting every descendant so it follows.

Which commits move:
  -r  only the given revisions; their other descendants stay in place
  -s  the given revisions and all their descendants
  -b  the branches containing the given revisions, relative to the
      destination (default: -b @)

Where they go:
  -d  onto the given commits
  -A  after the given commits, before their children
  -B  before the given commits, after their parents`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, targets, onto, err := f.request()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("skip-emptied") && c.settings.SkipEmptied {
				req.Empty = repo.AbandonNewlyEmpty
			}
			if !cmd.Flags().Changed("keep-divergent") {
				req.KeepDivergent = c.settings.KeepDivergent
			}

			var report *repo.RebaseReport
			next, err := c.mutate(cmd, "rebase commits", func(ctx context.Context, tx *repo.Transaction) (err error) {
				if req.Targets, err = resolveRevs(tx, targets); err != nil {
					return err
				}
				if req.Commits, err = resolveRevs(tx, onto); err != nil {
					return err
				}
				report, err = repo.MoveCommits(ctx, tx, req)
				return err
			})
			if err != nil {
				return err
			}
			defer next.Close()
			printReport(cmd, report)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.revisions, "revisions", "r", nil, "rebase only these revisions")
	flags.StringSliceVarP(&f.sources, "source", "s", nil, "rebase these revisions and their descendants")
	flags.StringSliceVarP(&f.branches, "branch", "b", nil, "rebase the branches containing these revisions")
	flags.StringSliceVarP(&f.destination, "destination", "d", nil, "new parents of the rebased commits")
	flags.StringSliceVarP(&f.after, "insert-after", "A", nil, "insert the rebased commits after these")
	flags.StringSliceVarP(&f.before, "insert-before", "B", nil, "insert the rebased commits before these")
	flags.BoolVar(&f.skipEmptied, "skip-emptied", false, "abandon commits that become empty")
	flags.BoolVar(&f.keepDivergent, "keep-divergent", false, "keep commits already present at the destination")
	cmd.MarkFlagsMutuallyExclusive("revisions", "source", "branch")
	cmd.MarkFlagsMutuallyExclusive("destination", "insert-after", "insert-before")
	return cmd
}
