package repo

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/systemshift/mxvc/internal/merge"
	"github.com/systemshift/mxvc/internal/store"
)

// Abandon hides the commits and rebases their descendants onto their
// parents.
func (tx *Transaction) Abandon(ctx context.Context, ids ...store.CommitID) (*RebaseReport, error) {
	for _, id := range ids {
		if err := tx.AbandonCommit(id); err != nil {
			return nil, err
		}
	}
	return tx.RebaseDescendants(ctx, RebaseOptions{})
}

// Describe replaces a commit's description.
func (tx *Transaction) Describe(ctx context.Context, id store.CommitID, desc string) (store.CommitID, error) {
	next, err := tx.RewriteCommit(ctx, id).SetDescription(desc).Write(ctx)
	if err != nil {
		return "", err
	}
	if _, err := tx.RebaseDescendants(ctx, RebaseOptions{}); err != nil {
		return "", err
	}
	return next, nil
}

// Amend replaces a commit's tree; descendants are rebased onto the result.
func (tx *Transaction) Amend(ctx context.Context, id store.CommitID, tree store.TreeID) (store.CommitID, error) {
	next, err := tx.RewriteCommit(ctx, id).SetTree(tree).Write(ctx)
	if err != nil {
		return "", err
	}
	if _, err := tx.RebaseDescendants(ctx, RebaseOptions{}); err != nil {
		return "", err
	}
	return next, nil
}

// Squash moves the changes of src into dst and abandons src. The
// descriptions are combined.
func (tx *Transaction) Squash(ctx context.Context, src, dst store.CommitID) (store.CommitID, error) {
	if src == dst {
		return "", errors.New("cannot squash a commit into itself")
	}
	for _, id := range []store.CommitID{src, dst} {
		if err := tx.checkMutable(id); err != nil {
			return "", err
		}
	}
	sc, err := tx.Store().ReadCommit(ctx, src)
	if err != nil {
		return "", err
	}
	base, err := tx.mergedParentTree(ctx, sc.Parents)
	if err != nil {
		return "", err
	}

	if err := tx.AbandonCommit(src); err != nil {
		return "", err
	}
	if _, err := tx.RebaseDescendants(ctx, RebaseOptions{}); err != nil {
		return "", err
	}

	target := tx.resolve(dst, true)[0]
	dc, err := tx.Store().ReadCommit(ctx, target)
	if err != nil {
		return "", err
	}
	tree, err := tx.Store().MergeTrees(ctx, base, dc.Tree, sc.Tree, merge.Labels{
		Base:  "parents of " + src.Short(),
		Left:  dst.Short(),
		Right: src.Short(),
	})
	if err != nil {
		return "", err
	}
	next, err := tx.RewriteCommit(ctx, target).
		SetTree(tree).
		SetDescription(combineDescriptions(dc.Description, sc.Description)).
		Write(ctx)
	if err != nil {
		return "", err
	}
	if _, err := tx.RebaseDescendants(ctx, RebaseOptions{}); err != nil {
		return "", err
	}
	return next, nil
}

func combineDescriptions(dst, src string) string {
	switch {
	case src == "":
		return dst
	case dst == "":
		return src
	}
	return dst + "\n\n" + src
}

// Split divides a commit in two. The first keeps the change id and holds
// the given paths; the second takes the rest and replaces the original, so
// bookmarks and descendants follow it.
func (tx *Transaction) Split(ctx context.Context, id store.CommitID, paths []string) (first, second store.CommitID, err error) {
	if err := tx.checkMutable(id); err != nil {
		return "", "", err
	}
	c, err := tx.Store().ReadCommit(ctx, id)
	if err != nil {
		return "", "", err
	}
	base, err := tx.mergedParentTree(ctx, c.Parents)
	if err != nil {
		return "", "", err
	}
	selected, err := tx.pickPaths(ctx, base, c.Tree, paths)
	if err != nil {
		return "", "", err
	}

	first, err = tx.NewCommit(c.Parents, selected).
		SetChangeID(c.ChangeID).
		SetPredecessors([]store.CommitID{id}).
		SetDescription(c.Description).
		SetAuthor(c.Author).
		Write(ctx)
	if err != nil {
		return "", "", err
	}
	second, err = tx.RewriteCommit(ctx, id).
		SetParents([]store.CommitID{first}).
		SetChangeID(store.NewChangeID()).
		Write(ctx)
	if err != nil {
		return "", "", err
	}
	if _, err := tx.RebaseDescendants(ctx, RebaseOptions{}); err != nil {
		return "", "", err
	}
	return first, second, nil
}

// pickPaths returns base with paths taken from the other tree. A path
// missing from from is removed.
func (tx *Transaction) pickPaths(ctx context.Context, base, from store.TreeID, paths []string) (store.TreeID, error) {
	bt, err := tx.Store().ReadTree(ctx, base)
	if err != nil {
		return "", err
	}
	ft, err := tx.Store().ReadTree(ctx, from)
	if err != nil {
		return "", err
	}
	out := &store.Tree{}
	for _, e := range bt.Entries {
		if !slices.Contains(paths, e.Path) {
			out.Entries = append(out.Entries, e)
		}
	}
	for _, p := range paths {
		if e, ok := ft.Lookup(p); ok {
			out.Entries = append(out.Entries, e)
		}
	}
	return tx.Store().WriteTree(ctx, out)
}

// overlayTree returns base with files written over it. A nil value removes
// the path.
func (tx *Transaction) overlayTree(ctx context.Context, base store.TreeID, files map[string][]byte) (store.TreeID, error) {
	if len(files) == 0 {
		return base, nil
	}
	bt, err := tx.Store().ReadTree(ctx, base)
	if err != nil {
		return "", err
	}
	out := &store.Tree{}
	for _, e := range bt.Entries {
		if _, ok := files[e.Path]; !ok {
			out.Entries = append(out.Entries, e)
		}
	}
	for path, data := range files {
		if data == nil {
			continue
		}
		blob, err := tx.Store().WriteBlob(ctx, data)
		if err != nil {
			return "", err
		}
		out.Entries = append(out.Entries, store.TreeEntry{Path: path, Blob: blob, Conflict: merge.HasMarkers(data)})
	}
	return tx.Store().WriteTree(ctx, out)
}

// New creates a commit on parents whose tree is the merge of the parents
// with files written over it.
func (tx *Transaction) New(ctx context.Context, parents []store.CommitID, desc string, files map[string][]byte) (store.CommitID, error) {
	if len(parents) == 0 {
		return "", ErrNoParents
	}
	base, err := tx.mergedParentTree(ctx, parents)
	if err != nil {
		return "", err
	}
	tree, err := tx.overlayTree(ctx, base, files)
	if err != nil {
		return "", err
	}
	return tx.NewCommit(parents, tree).SetDescription(desc).Write(ctx)
}

// NewWorkingCopy creates an empty commit on parents and checks it out in
// ws.
func (tx *Transaction) NewWorkingCopy(ctx context.Context, ws string, parents []store.CommitID) (store.CommitID, error) {
	id, err := tx.New(ctx, parents, "", nil)
	if err != nil {
		return "", err
	}
	if err := tx.SetWorkspaceCheckout(ws, id); err != nil {
		return "", err
	}
	return id, nil
}

// Edit checks out an existing commit in ws.
func (tx *Transaction) Edit(ws string, id store.CommitID) error {
	if err := tx.checkMutable(id); err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	return tx.SetWorkspaceCheckout(ws, id)
}
