package repo

import (
	"context"
	"slices"

	"github.com/systemshift/mxvc/internal/merge"
	"github.com/systemshift/mxvc/internal/store"
)

// EmptyBehavior decides what happens to a commit that a rebase empties.
type EmptyBehavior int

const (
	// KeepEmpty keeps every rewritten commit.
	KeepEmpty EmptyBehavior = iota
	// AbandonNewlyEmpty abandons commits that had changes before the
	// rebase and have none after it. Commits that were already empty stay.
	AbandonNewlyEmpty
)

// RebaseOptions tune the descendant rebase.
type RebaseOptions struct {
	Empty EmptyBehavior
	// SimplifyAncestors drops a new parent that is an ancestor of another.
	SimplifyAncestors bool
}

// RebaseDescendants rewrites every visible descendant of the commits
// rewritten or abandoned so far, then moves heads, bookmarks and workspace
// checkouts to the replacements.
func (tx *Transaction) RebaseDescendants(ctx context.Context, opts RebaseOptions) (*RebaseReport, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	report := newReport()
	if err := tx.rebaseDescendants(ctx, opts, report); err != nil {
		return nil, err
	}
	report.observe(tx.repo.s.metrics)
	return report, nil
}

// rebaseDescendants adds its counts to report.
func (tx *Transaction) rebaseDescendants(ctx context.Context, opts RebaseOptions, report *RebaseReport) error {
	if len(tx.pending) == 0 {
		return nil
	}
	roots := slices.Clone(tx.pending)

	candidates := tx.index.Descendants(roots...).Intersect(tx.Visible())
	for id := range tx.replaced {
		candidates.Remove(id)
	}
	for _, id := range tx.index.TopoOrder(candidates.ToSlice()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := tx.Store().ReadCommit(ctx, id)
		if err != nil {
			return err
		}
		parents := tx.mapParents(c.Parents)
		if opts.SimplifyAncestors {
			parents = tx.simplifyParents(parents)
		}
		if slices.Equal(parents, c.Parents) {
			continue
		}
		tree, err := tx.rebasedTree(ctx, id, c, parents)
		if err != nil {
			return err
		}
		if opts.Empty == AbandonNewlyEmpty {
			abandon, err := tx.becameEmpty(ctx, c, tree, parents)
			if err != nil {
				return err
			}
			if abandon {
				tx.recordAbandon(id, parents)
				report.AbandonedEmpty = append(report.AbandonedEmpty, id)
				continue
			}
		}
		if _, err := tx.writeRebased(ctx, id, parents, tree, report); err != nil {
			return err
		}
		report.RebasedDescendants++
	}

	if err := tx.updateView(ctx); err != nil {
		return err
	}
	tx.fillReplacements(report)
	return nil
}

// writeRebased writes the rewrite of old and counts a conflict.
func (tx *Transaction) writeRebased(ctx context.Context, old store.CommitID, parents []store.CommitID, tree store.TreeID, report *RebaseReport) (store.CommitID, error) {
	id, err := tx.RewriteCommit(ctx, old).SetParents(parents).SetTree(tree).Write(ctx)
	if err != nil {
		return "", err
	}
	conflicted, err := tx.Store().TreeHasConflict(ctx, tree)
	if err != nil {
		return "", err
	}
	if conflicted {
		report.Conflicted++
	}
	return id, nil
}

func (tx *Transaction) fillReplacements(report *RebaseReport) {
	for old := range tx.replaced {
		report.Replacements[old] = tx.resolve(old, true)
	}
}

// mapParents replaces each parent with what stands in for it now.
func (tx *Transaction) mapParents(parents []store.CommitID) []store.CommitID {
	var out []store.CommitID
	for _, p := range parents {
		for _, np := range tx.resolve(p, false) {
			if !slices.Contains(out, np) {
				out = append(out, np)
			}
		}
	}
	if len(out) == 0 {
		out = []store.CommitID{tx.Store().RootCommitID()}
	}
	return out
}

// simplifyParents drops parents that are ancestors of another parent,
// keeping order.
func (tx *Transaction) simplifyParents(parents []store.CommitID) []store.CommitID {
	if len(parents) < 2 {
		return parents
	}
	heads := tx.index.HeadsAmong(parents)
	return slices.DeleteFunc(slices.Clone(parents), func(p store.CommitID) bool {
		return !slices.Contains(heads, p)
	})
}

// becameEmpty reports whether c had changes against its old parents but
// its rebased tree has none against the new ones.
func (tx *Transaction) becameEmpty(ctx context.Context, c *store.Commit, tree store.TreeID, parents []store.CommitID) (bool, error) {
	oldBase, err := tx.mergedParentTree(ctx, c.Parents)
	if err != nil {
		return false, err
	}
	if oldBase == c.Tree {
		return false, nil
	}
	newBase, err := tx.mergedParentTree(ctx, parents)
	if err != nil {
		return false, err
	}
	return newBase == tree, nil
}

// IsEmpty reports whether a commit changes nothing against its parents.
func (tx *Transaction) IsEmpty(ctx context.Context, id store.CommitID) (bool, error) {
	c, err := tx.Store().ReadCommit(ctx, id)
	if err != nil {
		return false, err
	}
	base, err := tx.mergedParentTree(ctx, c.Parents)
	if err != nil {
		return false, err
	}
	return base == c.Tree, nil
}

// mergedParentTree is the automatic merge of the parents' trees: a fold of
// 3-way merges, each against the trees' closest common ancestor.
func (tx *Transaction) mergedParentTree(ctx context.Context, parents []store.CommitID) (store.TreeID, error) {
	st := tx.Store()
	if len(parents) == 0 {
		return st.EmptyTreeID(), nil
	}
	first, err := st.ReadCommit(ctx, parents[0])
	if err != nil {
		return "", err
	}
	tree := first.Tree
	for i, p := range parents[1:] {
		c, err := st.ReadCommit(ctx, p)
		if err != nil {
			return "", err
		}
		base := st.EmptyTreeID()
		if common := tx.index.CommonAncestors(parents[:i+1], []store.CommitID{p}); len(common) > 0 {
			bc, err := st.ReadCommit(ctx, common[0])
			if err != nil {
				return "", err
			}
			base = bc.Tree
		}
		tree, err = st.MergeTrees(ctx, base, tree, c.Tree, merge.Labels{
			Base:  "common ancestor",
			Left:  "parents",
			Right: p.Short(),
		})
		if err != nil {
			return "", err
		}
	}
	return tree, nil
}

// rebasedTree replays the changes c made against its old parents on top of
// the new ones.
func (tx *Transaction) rebasedTree(ctx context.Context, id store.CommitID, c *store.Commit, parents []store.CommitID) (store.TreeID, error) {
	oldBase, err := tx.mergedParentTree(ctx, c.Parents)
	if err != nil {
		return "", err
	}
	newBase, err := tx.mergedParentTree(ctx, parents)
	if err != nil {
		return "", err
	}
	if oldBase == newBase {
		return c.Tree, nil
	}
	return tx.Store().MergeTrees(ctx, oldBase, c.Tree, newBase, merge.Labels{
		Base:  "parents of " + id.Short(),
		Left:  id.Short(),
		Right: "destination",
	})
}

// updateView moves heads, local bookmarks and workspace checkouts off the
// commits in the pending list and clears it.
func (tx *Transaction) updateView(ctx context.Context) error {
	pending := tx.pending
	tx.pending = nil
	if len(pending) == 0 {
		return nil
	}

	var heads []store.CommitID
	for _, h := range tx.view.Heads {
		heads = append(heads, tx.resolve(h, true)...)
		// The old parents of a replaced head stay visible.
		if _, ok := tx.replaced[h]; ok {
			heads = append(heads, tx.mapParents(tx.index.Parents(h))...)
		}
	}
	tx.view.Heads = tx.index.HeadsAmong(heads)

	follow := func(id store.CommitID) []store.CommitID { return tx.resolve(id, true) }
	for name, t := range tx.view.LocalBookmarks {
		if moved := t.Map(follow); !moved.Equal(t) {
			tx.view.SetBookmark(name, moved)
		}
	}

	wsNames := make([]string, 0, len(tx.view.WorkspaceCheckouts))
	for ws := range tx.view.WorkspaceCheckouts {
		wsNames = append(wsNames, ws)
	}
	slices.Sort(wsNames)
	for _, ws := range wsNames {
		old := tx.view.WorkspaceCheckouts[ws]
		r, ok := tx.replaced[old]
		if !ok {
			continue
		}
		if !r.abandoned {
			tx.view.SetWorkspaceCheckout(ws, tx.resolve(old, true)[0])
			continue
		}
		parents := tx.resolve(old, true)
		tree, err := tx.mergedParentTree(ctx, parents)
		if err != nil {
			return err
		}
		id, err := tx.NewCommit(parents, tree).Write(ctx)
		if err != nil {
			return err
		}
		tx.view.SetWorkspaceCheckout(ws, id)
		tx.log.WithField("workspace", ws).Debug("created new working-copy commit")
	}
	return nil
}
